package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"cashkit/config"
	"cashkit/internal/credentials"
	"cashkit/internal/forms"
)

// SetNode runs the node configuration form and saves the result.
func SetNode() error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	settings := *app.Settings
	network := settings.Network
	host := settings.Node.Host
	user := settings.Node.User
	useTLS := !settings.Node.DisableTLS
	var password string

	form := forms.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Network").
				Options(huh.NewOptions(config.KnownNetworks()...)...).
				Value(&network),
			huh.NewInput().
				Title("Node host").
				Description("host:port of the node's RPC endpoint").
				Validate(func(s string) error {
					return config.ValidateNodeHost(strings.TrimSpace(s))
				}).
				Value(&host),
			huh.NewInput().
				Title("RPC user").
				Value(&user),
			huh.NewConfirm().
				Title("Connect over TLS?").
				Affirmative("Yes").
				Negative("No").
				Value(&useTLS),
			huh.NewInput().
				Title("RPC password").
				Description("Leave empty to keep the stored password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return forms.ErrCancelled
	}

	settings.Network = network
	settings.Node.Host = strings.TrimSpace(host)
	settings.Node.User = strings.TrimSpace(user)
	settings.Node.DisableTLS = !useTLS
	if err := config.SaveSettings(&settings); err != nil {
		return err
	}
	if password != "" {
		if err := credentials.SetNodeRPCPassword(password); err != nil {
			return fmt.Errorf("store node password: %w", err)
		}
		if err := credentials.NewRegistry(app.DB).Register(credentials.NodeRPCSecretName); err != nil {
			return err
		}
	}

	fmt.Println("Node settings saved. Run 'ck node test' to check the connection.")
	return nil
}

// ShowNode prints the configured node without dialing it.
func ShowNode() error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	tls := "enabled"
	if app.Settings.Node.DisableTLS {
		tls = "disabled"
	}
	stored, err := credentials.HasNodeRPCPassword()
	password := "not stored"
	if err == nil && stored {
		password = "stored in keyring"
	}

	fmt.Printf("Network:  %s\n", app.Settings.Network)
	fmt.Printf("Host:     %s\n", orDash(app.Settings.Node.Host))
	fmt.Printf("User:     %s\n", orDash(app.Settings.Node.User))
	fmt.Printf("TLS:      %s\n", tls)
	fmt.Printf("Password: %s\n", password)
	return nil
}

// TestNode dials the configured node and reports its block height.
func TestNode(ctx context.Context) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	client, err := app.nodeClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	height, err := client.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("node %s is not reachable: %w", app.Settings.Node.Host, err)
	}
	fmt.Printf("Connected to %s (block height %d)\n", app.Settings.Node.Host, height)
	return nil
}
