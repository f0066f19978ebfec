package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/talekeeper/npc-agent/pkg/character"
	"github.com/talekeeper/npc-agent/pkg/chat"
)

const PlaceHolderText = "Say something to the character..."

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	character    *character.Character
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	history      []chat.ChatMessage
	insight      string
	inventory    []string
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Progress bar state
	progressTick int
}

type turnResponseMsg struct {
	response *chat.TurnResponse
	err      error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	npcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	insightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")). // dark grey
			Italic(true)
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client, c *character.Character) *ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = "> "
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	return &ConsoleUI{
		config:    cfg,
		client:    client,
		character: c,
		textarea:  ta,
		inventory: c.Inventory,
	}
}

func (ui *ConsoleUI) Init() tea.Cmd {
	return textarea.Blink
}

func (ui *ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
	)
	ui.textarea, taCmd = ui.textarea.Update(msg)
	ui.chatViewport, vpCmd = ui.chatViewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		ui.width = msg.Width
		ui.height = msg.Height
		ui.layout()
		ui.ready = true

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return ui, tea.Quit
		case tea.KeyEnter:
			question := strings.TrimSpace(ui.textarea.Value())
			if question == "" || ui.loading {
				return ui, nil
			}
			ui.textarea.Reset()
			ui.err = nil
			ui.loading = true
			ui.progressTick = 0
			ui.history = append(ui.history, chat.ChatMessage{
				Role:    chat.ChatRoleUser,
				Content: question,
			})
			ui.refreshChat()
			return ui, tea.Batch(ui.sendTurnCmd(question), progressTick())
		}

	case progressTickMsg:
		if ui.loading {
			ui.progressTick++
			ui.refreshChat()
			return ui, progressTick()
		}

	case turnResponseMsg:
		ui.loading = false
		if msg.err != nil {
			ui.err = msg.err
			// Drop the question that failed so history stays consistent
			// with what the character actually heard.
			if n := len(ui.history); n > 0 && ui.history[n-1].Role == chat.ChatRoleUser {
				ui.history = ui.history[:n-1]
			}
		} else {
			ui.history = append(ui.history, chat.ChatMessage{
				Role:    chat.ChatRoleAgent,
				Content: msg.response.Text,
			})
			if msg.response.DMInsight != "" {
				ui.insight = msg.response.DMInsight
			}
			if msg.response.Inventory != nil {
				ui.inventory = msg.response.Inventory
			}
		}
		ui.refreshChat()
		ui.refreshMeta()
	}

	return ui, tea.Batch(taCmd, vpCmd)
}

func (ui *ConsoleUI) View() string {
	if !ui.ready {
		return "Loading..."
	}

	chatPanel := chatPanelStyle.Render(ui.chatViewport.View())
	metaPanel := metaPanelStyle.Render(ui.metaViewport.View())
	panels := lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)

	return fmt.Sprintf("%s\n%s", panels, ui.textarea.View())
}

func (ui *ConsoleUI) layout() {
	chatWidth := ui.width * 2 / 3
	metaWidth := ui.width - chatWidth - 6
	panelHeight := ui.height - ui.textarea.Height() - 4

	ui.chatViewport = viewport.New(chatWidth, panelHeight)
	ui.metaViewport = viewport.New(metaWidth, panelHeight)
	ui.textarea.SetWidth(ui.width - 4)

	ui.refreshChat()
	ui.refreshMeta()
}

func (ui *ConsoleUI) refreshChat() {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(ui.character.Name) + "\n\n")

	for _, m := range ui.history {
		speaker := ui.character.Name
		style := npcStyle
		if m.Role == chat.ChatRoleUser {
			speaker = "You"
			style = userStyle
		}
		sb.WriteString(speakerStyle.Render(speaker+": ") + style.Render(m.Content) + "\n\n")
	}

	if ui.loading {
		sb.WriteString(loadingStyle.Render("thinking" + strings.Repeat(".", ui.progressTick%4)))
	}
	if ui.err != nil {
		sb.WriteString(errorStyle.Render("Error: "+ui.err.Error()) + "\n")
	}

	ui.chatViewport.SetContent(wordwrap.String(sb.String(), ui.chatViewport.Width))
	ui.chatViewport.GotoBottom()
}

func (ui *ConsoleUI) refreshMeta() {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Character") + "\n")
	sb.WriteString(fmt.Sprintf("%s, %s\n\n", ui.character.Name, ui.character.Race))

	sb.WriteString(titleStyle.Render("Inventory") + "\n")
	if len(ui.inventory) == 0 {
		sb.WriteString("(empty)\n")
	}
	for _, item := range ui.inventory {
		sb.WriteString("- " + item + "\n")
	}

	if ui.insight != "" {
		sb.WriteString("\n" + titleStyle.Render("DM Insight") + "\n")
		sb.WriteString(insightStyle.Render(ui.insight) + "\n")
	}

	ui.metaViewport.SetContent(wordwrap.String(sb.String(), ui.metaViewport.Width))
}

func (ui *ConsoleUI) sendTurnCmd(question string) tea.Cmd {
	// Exclude the question just appended; it travels separately.
	history := append([]chat.ChatMessage(nil), ui.history[:len(ui.history)-1]...)
	req := &chat.TurnRequest{
		CharacterID: ui.character.ID,
		Question:    question,
		History:     history,
	}
	return func() tea.Msg {
		resp, err := sendTurn(ui.client, ui.config, req)
		return turnResponseMsg{response: resp, err: err}
	}
}

func progressTick() tea.Cmd {
	return tea.Tick(400*time.Millisecond, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
