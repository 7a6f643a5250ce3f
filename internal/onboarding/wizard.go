// Package onboarding implements the first-run setup wizard: pick a
// network, point at a full node, store the RPC password in the system
// keyring and set up a wallet key.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"

	"cashkit/config"
	"cashkit/internal/chain"
	"cashkit/internal/credentials"
	"cashkit/internal/forms"
	"cashkit/internal/wallet"
	"cashkit/pkg/db"
	"cashkit/pkg/migration"
)

// Preferences records whether setup has completed. It lives next to
// settings.yaml so a half-finished wizard runs again on the next start.
type Preferences struct {
	SetupComplete bool `yaml:"setup_complete"`
}

const wizardMaxWidth = 80

var (
	wizardRed     = lipgloss.AdaptiveColor{Light: "#bf5d47", Dark: "#bf5d47"}
	wizardPrimary = lipgloss.AdaptiveColor{Light: "#8dc351", Dark: "#8dc351"}
	wizardAccent  = lipgloss.Color("#3cd7a4")
)

type wizardStyles struct {
	Base,
	HeaderText,
	ErrorHeaderText,
	Help lipgloss.Style
}

func newWizardStyles(lg *lipgloss.Renderer) wizardStyles {
	s := wizardStyles{}
	s.Base = lg.NewStyle().Padding(0)
	s.HeaderText = lg.NewStyle().Foreground(wizardPrimary).Bold(true).Padding(0)
	s.ErrorHeaderText = s.HeaderText.Foreground(wizardRed)
	s.Help = lg.NewStyle().Foreground(lipgloss.Color("240"))
	return s
}

type wizardModel struct {
	width     int
	lg        *lipgloss.Renderer
	styles    wizardStyles
	form      *huh.Form
	cancelled bool
}

func newWizardModel() *wizardModel {
	lg := lipgloss.DefaultRenderer()
	styles := newWizardStyles(lg)
	width := wizardMaxWidth - styles.Base.GetHorizontalFrameSize()
	if width <= 0 {
		width = wizardMaxWidth
	}
	m := &wizardModel{
		width:  width,
		lg:     lg,
		styles: styles,
	}

	m.form = forms.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("").
				Description("cashkit consolidates fragmented coins, uploads files\non chain and keeps a history of every run.\n\nThis setup will:\n\n 1. Choose a network and node\n 2. Store the RPC password in your keyring\n 3. Set up a wallet key\n\nPress Enter to continue."),
		),
	)

	return m
}

func (m *wizardModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m *wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width <= 0 {
			break
		}
		width := min(msg.Width, wizardMaxWidth)
		width -= m.styles.Base.GetHorizontalFrameSize()
		if width <= 0 {
			width = wizardMaxWidth
		}
		m.width = width
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmds []tea.Cmd

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
		cmds = append(cmds, cmd)
	}

	if m.form.State == huh.StateCompleted {
		cmds = append(cmds, tea.Quit)
		return m, tea.Batch(cmds...)
	}

	return m, tea.Batch(cmds...)
}

func (m *wizardModel) View() string {
	if m.form == nil {
		return ""
	}

	if m.cancelled {
		return m.styles.Base.Render(m.appBoundaryView("cashkit setup cancelled") + "\n")
	}

	switch m.form.State {
	case huh.StateCompleted:
		header := m.appBoundaryView("cashkit")
		footer := m.styles.Help.Render("Press Enter to continue")
		return m.styles.Base.Render(header + "\n\n" + footer)
	default:
		header := m.appBoundaryView("cashkit")
		formView := m.form.View()

		// Indent the body a notch without re-rendering through lipgloss
		lines := strings.Split(formView, "\n")
		var bodyLines []string
		for _, line := range lines {
			bodyLines = append(bodyLines, " "+line)
		}
		body := strings.Join(bodyLines, "\n")

		if errs := m.errorView(); errs != "" {
			header = m.appErrorBoundaryView(errs)
		}

		return header + "\n" + body + "\n\n"
	}
}

func (m *wizardModel) errorView() string {
	var out strings.Builder
	for _, err := range m.form.Errors() {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(err.Error())
	}
	return out.String()
}

// wordmark is the banner shown above the intro form.
var wordmark = strings.Join([]string{
	`               _     _    _ _   `,
	`  ___ __ _ ___| |__ | | _(_) |_ `,
	" / __/ _` / __| '_ \\| |/ / | __|",
	`| (_| (_| \__ \ | | |   <| | |_ `,
	` \___\__,_|___/_| |_|_|\_\_|\__|`,
}, "\n")

func (m *wizardModel) appBoundaryView(text string) string {
	if m.width <= 0 {
		return ""
	}

	if text == "cashkit" {
		return m.styles.HeaderText.MarginLeft(2).MarginTop(1).Render(wordmark)
	}

	styledText := m.styles.HeaderText.Render(text)

	// Pattern line with a gradient fade behind the label
	line := " " + strings.Repeat("╱", 64)
	styledLine := applyGradient(line, wizardPrimary, wizardAccent)

	result := lipgloss.JoinHorizontal(lipgloss.Top, styledText, styledLine)

	return lipgloss.NewStyle().Width(m.width).Render(result)
}

func (m *wizardModel) appErrorBoundaryView(text string) string {
	if m.width <= 0 {
		return ""
	}

	styledText := m.styles.ErrorHeaderText.Render(text)

	line := " " + strings.Repeat("/", 80)
	styledLine := lipgloss.NewStyle().Foreground(wizardRed).Render(line)

	result := lipgloss.JoinHorizontal(lipgloss.Top, styledText, styledLine)

	return lipgloss.NewStyle().Width(m.width).Render(result)
}

// applyGradient applies a gradient from one color to another across the text.
// Falls back to solid color if the terminal doesn't support TrueColor.
func applyGradient(text string, from, to color.Color) string {
	rs := []rune(text)
	n := len(rs)
	if n == 0 {
		return ""
	}

	profile := termenv.ColorProfile()
	if profile != termenv.TrueColor {
		c1, _ := colorful.MakeColor(from)
		hex := lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", uint8(c1.R*255), uint8(c1.G*255), uint8(c1.B*255)))
		return lipgloss.NewStyle().Foreground(hex).Bold(true).Render(text)
	}

	c1, _ := colorful.MakeColor(from)
	c2, _ := colorful.MakeColor(to)
	var out string
	for i, r := range rs {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		c := c1.BlendLab(c2, t)
		hex := lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", uint8(c.R*255), uint8(c.G*255), uint8(c.B*255)))
		out += lipgloss.NewStyle().Foreground(hex).Bold(true).Render(string(r))
	}
	return out
}

// RunWizard walks through the whole setup. It owns the database handle
// for the duration of the run and saves settings only after every step
// has answered, so a cancelled wizard leaves no partial configuration.
func RunWizard() error {
	model := newWizardModel()
	program := tea.NewProgram(model)

	finalModel, teaErr := program.Run()
	if teaErr != nil {
		return teaErr
	}

	wm, ok := finalModel.(*wizardModel)
	if !ok {
		return fmt.Errorf("unexpected wizard model type %T", finalModel)
	}
	if wm.cancelled {
		return forms.ErrCancelled
	}

	settings, err := collectSettings()
	if err != nil {
		return err
	}

	dbPath, err := config.GetDatabasePath()
	if err != nil {
		return err
	}
	handle, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer handle.Close()
	if err := migration.NewRunner(handle.Write).Run(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if err := ensureNodePassword(handle); err != nil {
		return err
	}

	probeNode(settings)

	if err := setupWalletKey(handle, settings); err != nil {
		return err
	}

	if err := config.SaveSettings(settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := savePreferences(Preferences{SetupComplete: true}); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}

	fg := lipgloss.Color("#dddddd")
	baseStyle := lipgloss.NewStyle().Foreground(fg)
	highlightStyle := lipgloss.NewStyle().Foreground(wizardPrimary).Bold(true)

	fmt.Println()
	fmt.Println(baseStyle.Render(" ✔︎ Setup complete!"))
	fmt.Println()
	fmt.Print(baseStyle.Render(" Run '"))
	fmt.Print(highlightStyle.Render("ck coins list"))
	fmt.Print(baseStyle.Render("' to see your coins or '"))
	fmt.Print(highlightStyle.Render("ck consolidate"))
	fmt.Print(baseStyle.Render("' to tidy them up."))
	fmt.Println()
	fmt.Println()

	return nil
}

// collectSettings asks for the network and node endpoint, starting from
// the shipped defaults.
func collectSettings() (*config.Settings, error) {
	settings := config.DefaultSettings()

	network := settings.Network
	host := settings.Node.Host
	user := settings.Node.User
	useTLS := !settings.Node.DisableTLS

	options := make([]huh.Option[string], 0, len(config.KnownNetworks()))
	for _, name := range config.KnownNetworks() {
		options = append(options, huh.NewOption(name, name))
	}

	form := forms.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Network").
				Description("Chain your node follows").
				Options(options...).
				Value(&network),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Node address").
				Description("host:port of the JSON-RPC endpoint (8332 mainnet, 18332 testnet3, 18443 regtest)").
				Placeholder("localhost:8332").
				Value(&host).
				Validate(func(s string) error {
					return config.ValidateNodeHost(strings.TrimSpace(s))
				}),
			huh.NewInput().
				Title("RPC user").
				Placeholder("rpcuser").
				Value(&user),
			huh.NewConfirm().
				Title("Connect over TLS?").
				Value(&useTLS),
		),
	)
	if err := form.Run(); err != nil {
		return nil, forms.ErrCancelled
	}

	settings.Network = network
	settings.Node.Host = strings.TrimSpace(host)
	settings.Node.User = strings.TrimSpace(user)
	settings.Node.DisableTLS = !useTLS
	return settings, nil
}

// ensureNodePassword prompts for the RPC password unless the keyring
// already holds one, and registers the secret name either way.
func ensureNodePassword(handle *db.DB) error {
	hasPassword, err := credentials.HasNodeRPCPassword()
	if err != nil {
		return fmt.Errorf("check existing node RPC password: %w", err)
	}

	registry := credentials.NewRegistry(handle)

	if hasPassword {
		fg := lipgloss.Color("#dddddd")
		baseStyle := lipgloss.NewStyle().Foreground(fg)
		fmt.Print(baseStyle.Render("\n Node RPC password already in the keyring.\n"))
		return registry.Register(credentials.NodeRPCSecretName)
	}

	var password string
	form := forms.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Node RPC password").
				Description("Stored in the system keyring, never on disk. Leave empty to skip.").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return forms.ErrCancelled
	}

	if strings.TrimSpace(password) == "" {
		fg := lipgloss.Color("#dddddd")
		baseStyle := lipgloss.NewStyle().Foreground(fg)
		fmt.Println(baseStyle.Render(" • No password stored. Set one later with 'ck node set'."))
		return nil
	}

	if err := credentials.SetNodeRPCPassword(password); err != nil {
		return fmt.Errorf("store node RPC password: %w", err)
	}
	if err := registry.Register(credentials.NodeRPCSecretName); err != nil {
		return fmt.Errorf("register node RPC password: %w", err)
	}
	return nil
}

// probeNode checks that the configured node answers. Failures are shown
// but never abort the wizard; the node can come up later.
func probeNode(settings *config.Settings) {
	password, err := credentials.GetNodeRPCPassword()
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return
	}

	params, err := wallet.ParamsForNetwork(settings.Network)
	if err != nil {
		return
	}

	spinnerStyle := lipgloss.NewStyle().MarginLeft(2).Foreground(lipgloss.Color("#8dc351"))
	var height int64
	var probeErr error

	err = spinner.New().
		Title("Checking node connection...").
		Style(spinnerStyle).
		Action(func() {
			client, err := chain.New(settings.Node, chain.Credentials{User: settings.Node.User, Password: password}, params)
			if err != nil {
				probeErr = err
				return
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			height, probeErr = client.TestConnection(ctx)
		}).
		Run()
	if err != nil {
		return
	}

	fg := lipgloss.Color("#dddddd")
	baseStyle := lipgloss.NewStyle().Foreground(fg)
	if probeErr != nil {
		fmt.Println(baseStyle.Render(fmt.Sprintf(" • Node not reachable (%v). Fix the details later with 'ck node set'.", probeErr)))
		return
	}
	fmt.Println(baseStyle.Render(fmt.Sprintf(" ✔︎ Node reachable, block height %d.", height)))
}

// setupWalletKey creates or imports the first key unless the keystore
// already has one.
func setupWalletKey(handle *db.DB, settings *config.Settings) error {
	params, err := wallet.ParamsForNetwork(settings.Network)
	if err != nil {
		return err
	}
	store := wallet.NewKeyStore(handle, params)

	existing, err := store.Addresses()
	if err != nil {
		return fmt.Errorf("read key store: %w", err)
	}

	fg := lipgloss.Color("#dddddd")
	baseStyle := lipgloss.NewStyle().Foreground(fg)

	if len(existing) > 0 {
		fmt.Println(baseStyle.Render(fmt.Sprintf(" %d wallet key(s) already stored.", len(existing))))
		return nil
	}

	const (
		choiceCreate = "create"
		choiceImport = "import"
		choiceSkip   = "skip"
	)
	choice := choiceCreate

	form := forms.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Wallet key").
				Description("Consolidations pay out to and uploads are funded from this key").
				Options(
					huh.NewOption("Generate a new key", choiceCreate),
					huh.NewOption("Import a WIF private key", choiceImport),
					huh.NewOption("Skip for now", choiceSkip),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return forms.ErrCancelled
	}

	if choice == choiceSkip {
		fmt.Println(baseStyle.Render(" • Skipped. Add a key later with 'ck wallet create' or 'ck wallet import'."))
		return nil
	}

	var wif, label, passphrase string
	fields := make([]huh.Field, 0, 4)
	if choice == choiceImport {
		fields = append(fields, huh.NewInput().
			Title("WIF private key").
			EchoMode(huh.EchoModePassword).
			Value(&wif).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("key cannot be empty")
				}
				return nil
			}))
	}
	fields = append(fields,
		huh.NewInput().
			Title("Label").
			Placeholder("main").
			Value(&label),
		huh.NewInput().
			Title("Passphrase").
			Description("Encrypts the key at rest").
			EchoMode(huh.EchoModePassword).
			Value(&passphrase).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("passphrase cannot be empty")
				}
				return nil
			}),
		huh.NewInput().
			Title("Confirm passphrase").
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error {
				if s != passphrase {
					return errors.New("passphrases do not match")
				}
				return nil
			}),
	)
	if err := forms.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return forms.ErrCancelled
	}

	var addr btcutil.Address
	if choice == choiceImport {
		addr, err = store.ImportWIF(strings.TrimSpace(wif), passphrase, strings.TrimSpace(label))
	} else {
		addr, err = store.CreateKey(passphrase, strings.TrimSpace(label))
	}
	if err != nil {
		return fmt.Errorf("set up wallet key: %w", err)
	}

	fmt.Println(baseStyle.Render(fmt.Sprintf(" ✔︎ Wallet key ready: %s", addr.EncodeAddress())))
	return nil
}

func savePreferences(prefs Preferences) error {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return err
	}

	prefsFile := filepath.Join(configDir, "preferences.yaml")
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return err
	}

	return os.WriteFile(prefsFile, data, 0644)
}
