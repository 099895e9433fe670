package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/pkg/models"
)

// Стили UI
var (
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)

	statusHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)

	statusSectionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor).
				Padding(0, 1)

	logsHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)

	logsSectionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor).
				Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI представляет терминальный интерфейс
type TermUI struct {
	statuses      map[string]*models.SymbolStatus
	statusesMutex sync.RWMutex
	logs          []string
	logsMutex     sync.RWMutex
	config        config.UIConfig
	program       *tea.Program
	selectedIndex int
	width         int
	height        int
	logFile       string
}

// Сообщения для обновления UI
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает терминальный интерфейс
func NewTermUI(cfg config.UIConfig) *TermUI {
	ui := &TermUI{
		statuses:      make(map[string]*models.SymbolStatus),
		logs:          []string{"FXBOT запущен. Ожидание данных..."},
		config:        cfg,
		selectedIndex: 0,
		width:         120,
		height:        40,
		logFile:       "fxbot.json.log",
	}

	if err := ui.loadLogsFromFile(); err != nil {
		ui.logs = append(ui.logs, fmt.Sprintf("Ошибка загрузки логов: %v", err))
	}

	refresh := time.Duration(cfg.RefreshRate) * time.Millisecond
	if refresh <= 0 {
		refresh = time.Second
	}

	// Периодическая подгрузка логов из файла
	go func() {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()

		for range ticker.C {
			_ = ui.loadLogsFromFile()
			if ui.program != nil {
				ui.program.Send(refreshMsg{})
			}
		}
	}()

	return ui
}

// Start запускает интерфейс и блокируется до выхода
func (ui *TermUI) Start() {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := ui.program.Run(); err != nil {
		fmt.Printf("Ошибка запуска UI: %v\n", err)
	}
}

// Stop завершает интерфейс
func (ui *TermUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
}

// UpdateStatus принимает обновление состояния символа из движка
func (ui *TermUI) UpdateStatus(status models.SymbolStatus) {
	ui.statusesMutex.Lock()
	ui.statuses[status.Symbol] = &status
	ui.statusesMutex.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// loadLogsFromFile читает последние строки JSON-лога
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	maxLines := ui.config.MaxLogLines
	if maxLines <= 0 {
		maxLines = 12
	}

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)

			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}

			logs = append(logs, formattedMsg)
		} else {
			logs = append(logs, line)
		}

		if len(logs) > maxLines {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMutex.Lock()
	defer ui.logsMutex.Unlock()

	if len(logs) > 0 {
		ui.logs = logs
	}

	return nil
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			m.ui.selectedIndex = max(0, m.ui.selectedIndex-1)
		case "down":
			symbols := sortedSymbols(m.ui.statuses)
			m.ui.selectedIndex = min(len(symbols)-1, m.ui.selectedIndex+1)
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.statusesMutex.RLock()
	m.ui.logsMutex.RLock()
	defer m.ui.statusesMutex.RUnlock()
	defer m.ui.logsMutex.RUnlock()

	title := titleStyle.Render("FXBOT - Forex Contingency Trader")
	statuses := renderStatusSection(m.ui.statuses, m.ui.selectedIndex)
	logs := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			statuses,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

// renderStatusSection выводит состояние каждого символа
func renderStatusSection(statuses map[string]*models.SymbolStatus, selectedIndex int) string {
	header := statusHeaderStyle.Render("СИМВОЛЫ")
	content := strings.Builder{}

	symbols := sortedSymbols(statuses)

	if len(symbols) == 0 {
		content.WriteString("  Ожидание данных...\n")
	} else {
		for i, symbol := range symbols {
			status := statuses[symbol]

			line := fmt.Sprintf("  %s: %s %s Цена: %.5f",
				symbol,
				formatDirectionText(status.Recommendation),
				formatStageText(status.Stage),
				status.CurrentPrice)
			if status.Profit != 0 {
				line += fmt.Sprintf(" Прибыль: %.2f", status.Profit)
			}

			if i == selectedIndex {
				line = "> " + line[2:]
				line = lipgloss.NewStyle().Background(lipgloss.Color("#222222")).Render(line)
			}

			content.WriteString(line + "\n")
		}
	}

	return statusSectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func renderLogsSection(logs []string) string {
	header := logsHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	for _, log := range logs {
		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return logsSectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

// Вспомогательные функции
func formatDirectionText(recommendation string) string {
	var style lipgloss.Style

	switch recommendation {
	case "BUY":
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case "SELL":
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}

	return style.Render(recommendation)
}

func formatStageText(stage models.PlanStage) string {
	if stage == "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")).Render("—")
	}

	var style lipgloss.Style
	switch stage {
	case models.StageEscalated:
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	case models.StageClosed:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}
	return style.Render(string(stage))
}

func sortedSymbols(statuses map[string]*models.SymbolStatus) []string {
	symbols := make([]string, 0, len(statuses))
	for symbol := range statuses {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
