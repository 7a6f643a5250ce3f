package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cashkit/internal/cli"
	"cashkit/internal/onboarding"
	"cashkit/updater"
	"cashkit/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ck",
	Short: "cashkit",
	Run: func(cmd *cobra.Command, args []string) {
		// Check if this is the first run
		if onboarding.IsFirstRun() {
			fmt.Println("Welcome to cashkit! Let's get you set up.")
			if err := onboarding.RunWizard(); err != nil {
				log.Fatalf("Setup failed: %v", err)
			}
			return
		}

		if err := cli.ShowStatus(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Sweep wallet coins into fewer outputs",
	Long: `Sweep wallet coins into fewer outputs.

A wizard walks through source address, destination and coin filters,
then builds, signs and broadcasts the consolidation transactions.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		if err := cli.RunConsolidation(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Store a file on chain with the Bitcoin Files Protocol",
	Long: `Store a file on chain with the Bitcoin Files Protocol.

The file is chunked into OP_RETURN outputs, funded from wallet coins,
signed and broadcast as a chain of transactions. Files up to 5261
bytes fit inside the protocol limit.

Examples:
  ck upload notes.txt
  ck upload logo.png --receiver bitcoincash:qr2vsmfd...
  ck upload notes.txt --prev-hash 8f3c1a29...

Run 'ck upload' without arguments for the interactive wizard.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		receiver, _ := cmd.Flags().GetString("receiver")
		prevHash, _ := cmd.Flags().GetString("prev-hash")

		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		ctx, cancel := signalContext()
		defer cancel()

		if err := cli.UploadFile(ctx, path, cli.UploadOptions{PrevHash: prevHash, Receiver: receiver}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var coinsCmd = &cobra.Command{
	Use:   "coins",
	Short: "Inspect and manage wallet coins",
}

var coinsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List spendable coins across wallet keys",
	Run: func(cmd *cobra.Command, args []string) {
		address, _ := cmd.Flags().GetString("address")
		frozenOnly, _ := cmd.Flags().GetBool("frozen")
		coinbaseOnly, _ := cmd.Flags().GetBool("coinbase")

		ctx, cancel := signalContext()
		defer cancel()

		if err := cli.ListWalletCoins(ctx, cli.CoinListOptions{
			Address:      address,
			FrozenOnly:   frozenOnly,
			CoinbaseOnly: coinbaseOnly,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var coinsFreezeCmd = &cobra.Command{
	Use:   "freeze [outpoint]",
	Short: "Exclude a coin from consolidation and uploads",
	Long: `Exclude a coin from consolidation and uploads.

The outpoint is the transaction id and output index joined by a colon:

  ck coins freeze 8f3c1a29...d41b:0`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.SetCoinFrozen(args[0], true); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var coinsUnfreezeCmd = &cobra.Command{
	Use:   "unfreeze [outpoint]",
	Short: "Make a frozen coin spendable again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.SetCoinFrozen(args[0], false); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded consolidation and upload runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return cli.ListRuns(cli.RunListOptions{
			Kind:   kind,
			Status: status,
			Limit:  limit,
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details and progress for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ShowRun(args[0])
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a run from the history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.DeleteRun(args[0])
	},
}

var runsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream run activity as it happens",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return cli.WatchRuns(ctx)
	},
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage wallet keys",
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate a new wallet key",
	Run: func(cmd *cobra.Command, args []string) {
		label, _ := cmd.Flags().GetString("label")
		if err := cli.CreateWalletKey(label); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a WIF private key",
	Run: func(cmd *cobra.Command, args []string) {
		label, _ := cmd.Flags().GetString("label")
		if err := cli.ImportWalletKey(label); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var walletAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "List wallet addresses",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.ListWalletAddresses(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var walletBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the spendable balance per address",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		if err := cli.WalletBalance(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Configure the Bitcoin Cash node connection",
}

var nodeSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the node connection details",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.SetNode(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var nodeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored node settings",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.ShowNode(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var nodeTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that the node is reachable",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		if err := cli.TestNode(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage secrets in the system keyring (NODE_RPC_PASSWORD and WALLET_PASSPHRASE reserved)",
}

var secretCreateCmd = &cobra.Command{
	Use:   "create [name] [value]",
	Short: "Store a new secret value",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		value := ""
		if len(args) > 1 {
			value = args[1]
		}
		if err := cli.CreateSecret(name, value); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var secretUpdateCmd = &cobra.Command{
	Use:   "update [name] [value]",
	Short: "Replace a stored secret value",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		value := ""
		if len(args) > 1 {
			value = args[1]
		}
		if err := cli.UpdateSecret(name, value); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Remove a stored secret",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.DeleteSecret(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var secretReadCmd = &cobra.Command{
	Use:   "read [name]",
	Short: "Read a secret value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value, err := cli.ReadSecret(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(value)
	},
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secrets registered with cashkit",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.ListSecrets(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var secretStatusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Check whether a secret exists",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.SecretStatus(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Broadcast transactions dropped into a directory",
}

var outboxWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch the outbox directory and broadcast .txn files",
	Long: `Watch a directory for serialized transactions and broadcast each one.

Drop a transaction with a .txn extension (raw or hex-encoded) into the
directory and it is sent to the configured node. Broadcast files move
to sent/, rejected ones to failed/.

Defaults to the outbox directory from settings when no directory is
given.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}

		ctx, cancel := signalContext()
		defer cancel()

		if err := cli.WatchOutbox(ctx, dir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the setup wizard",
	Run: func(cmd *cobra.Command, args []string) {
		if err := onboarding.RunWizard(); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check installation and runtime health",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		exitCode, err := cli.Doctor(ctx, cmd.OutOrStdout())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Version information and update commands",
}

var versionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cashkit version %s\n", version.Get())
	},
}

var versionCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for available updates",
	Run: func(cmd *cobra.Command, args []string) {
		includePrerelease, _ := cmd.Flags().GetBool("pre-release")
		fmt.Println("Checking for updates...")
		info, err := updater.CheckForUpdates(includePrerelease)
		if err != nil {
			// Handle "no releases" gracefully
			if strings.Contains(err.Error(), "no releases published") {
				fmt.Printf("Current version: %s\n", version.Get())
				fmt.Println("\nNo releases published yet on GitHub")
				return
			}
			fmt.Fprintf(os.Stderr, "Error checking for updates: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Current version: %s\n", info.CurrentVersion)
		fmt.Printf("Latest version:  %s\n", info.LatestVersion)

		if info.Available {
			fmt.Printf("\n✓ Update available!\n")
			fmt.Printf("Run 'ck version update' to install version %s\n", info.LatestVersion)
		} else {
			fmt.Println("\n✓ You are running the latest version")
		}
	},
}

var versionUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update to the latest version",
	Run: func(cmd *cobra.Command, args []string) {
		includePrerelease, _ := cmd.Flags().GetBool("pre-release")
		fmt.Println("Checking for updates...")
		info, err := updater.CheckForUpdates(includePrerelease)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking for updates: %v\n", err)
			os.Exit(1)
		}

		if !info.Available {
			fmt.Println("✓ You are already running the latest version")
			return
		}

		fmt.Printf("Current version: %s\n", info.CurrentVersion)
		fmt.Printf("Latest version:  %s\n\n", info.LatestVersion)
		fmt.Println("Downloading and installing update...")

		if err := updater.DownloadAndInstall(info); err != nil {
			fmt.Fprintf(os.Stderr, "Error installing update: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n✓ Successfully updated to version %s\n", info.LatestVersion)
		fmt.Println("Restart any running 'ck outbox watch' or 'ck runs watch' to pick up the new binary.")
	},
}

// signalContext returns a context cancelled by ctrl+c or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	// Disable the default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	uploadCmd.Flags().String("receiver", "", "Pay the final file output to this address")
	uploadCmd.Flags().String("prev-hash", "", "Metadata txid of the version this file replaces")

	coinsListCmd.Flags().String("address", "", "Only show coins held by this address")
	coinsListCmd.Flags().Bool("frozen", false, "Only show frozen coins")
	coinsListCmd.Flags().Bool("coinbase", false, "Only show coinbase coins")
	coinsCmd.AddCommand(coinsListCmd)
	coinsCmd.AddCommand(coinsFreezeCmd)
	coinsCmd.AddCommand(coinsUnfreezeCmd)

	runsListCmd.Flags().String("kind", "", "Filter runs by kind (consolidate|upload)")
	runsListCmd.Flags().String("status", "", "Filter runs by status (finished|failed|interrupted|...)")
	runsListCmd.Flags().IntP("limit", "n", 0, "Show at most N runs (0 = all)")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsWatchCmd)

	walletCreateCmd.Flags().StringP("label", "l", "", "Label for the new key")
	walletImportCmd.Flags().StringP("label", "l", "", "Label for the imported key")
	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletImportCmd)
	walletCmd.AddCommand(walletAddressCmd)
	walletCmd.AddCommand(walletBalanceCmd)

	nodeCmd.AddCommand(nodeSetCmd)
	nodeCmd.AddCommand(nodeShowCmd)
	nodeCmd.AddCommand(nodeTestCmd)

	secretCmd.AddCommand(secretCreateCmd)
	secretCmd.AddCommand(secretUpdateCmd)
	secretCmd.AddCommand(secretDeleteCmd)
	secretCmd.AddCommand(secretReadCmd)
	secretCmd.AddCommand(secretListCmd)
	secretCmd.AddCommand(secretStatusCmd)

	outboxCmd.AddCommand(outboxWatchCmd)

	// Add version subcommands
	versionCheckCmd.Flags().Bool("pre-release", false, "Include pre-release versions")
	versionUpdateCmd.Flags().Bool("pre-release", false, "Include pre-release versions")
	versionCmd.AddCommand(versionShowCmd)
	versionCmd.AddCommand(versionCheckCmd)
	versionCmd.AddCommand(versionUpdateCmd)

	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(coinsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
