package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/talekeeper/npc-agent/pkg/tier"
)

const tierCacheTTL = 5 * time.Minute

// UserProfile is the resolved identity attached to every authenticated
// request. The user ID is trusted for all data scoping.
type UserProfile struct {
	ID   uuid.UUID
	Tier tier.Tier
}

// Verifier resolves a bearer credential to a user profile.
type Verifier interface {
	Verify(ctx context.Context, token string) (*UserProfile, error)
}

// SupabaseVerifier verifies bearer tokens against a Supabase-style auth API
// and resolves the user's subscription tier from the profiles table. Tier
// lookups are cached briefly; every turn needs the tier and the upstream
// lookup is an HTTP round trip.
type SupabaseVerifier struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	tierCache  *ristretto.Cache
	logger     *slog.Logger
}

// NewSupabaseVerifier creates a new Supabase identity verifier
func NewSupabaseVerifier(baseURL, serviceKey string, logger *slog.Logger) (*SupabaseVerifier, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tier cache: %w", err)
	}

	return &SupabaseVerifier{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		tierCache: cache,
		logger:    logger,
	}, nil
}

type authUserResponse struct {
	ID string `json:"id"`
}

type profileRow struct {
	SubscriptionTier string `json:"subscription_tier"`
}

// Verify resolves a bearer token to a user profile.
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.serviceKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("invalid or expired token (status %d)", resp.StatusCode)
	}

	var user authUserResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse auth response: %w", err)
	}
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id in auth response: %w", err)
	}

	userTier, err := v.lookupTier(ctx, userID)
	if err != nil {
		// Tier resolution failure degrades to the fallback tier rather than
		// failing the request; the fallback is conservative.
		v.logger.Warn("Tier lookup failed, using fallback", "user_id", userID, "error", err)
		userTier = tier.Fallback
	}

	return &UserProfile{ID: userID, Tier: userTier}, nil
}

func (v *SupabaseVerifier) lookupTier(ctx context.Context, userID uuid.UUID) (tier.Tier, error) {
	if cached, ok := v.tierCache.Get(userID.String()); ok {
		if t, ok := cached.(tier.Tier); ok {
			return t, nil
		}
	}

	url := fmt.Sprintf("%s/rest/v1/profiles?id=eq.%s&select=subscription_tier", v.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.serviceKey)
	req.Header.Set("apikey", v.serviceKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile lookup failed with status %d", resp.StatusCode)
	}

	var rows []profileRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return "", fmt.Errorf("failed to parse profile response: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no profile row for user")
	}

	t := tier.Parse(rows[0].SubscriptionTier)
	v.tierCache.SetWithTTL(userID.String(), t, 1, tierCacheTTL)
	return t, nil
}
