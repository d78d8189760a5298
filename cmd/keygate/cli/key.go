package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygatehq/keygate/internal/credential"
	"github.com/keygatehq/keygate/internal/entitlement"
	"github.com/keygatehq/keygate/internal/model"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke API keys directly against the store, without going through the management API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		ownerID int64
		name    string
		expires string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key for an account. The plaintext key is shown once and cannot be retrieved again.",
		Example: `  keygate key create --owner 1 --name "CI pipeline"
  keygate key create --owner 1 --expires 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(ownerID, name, expires)
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Owning account ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable label for the key")
	cmd.Flags().StringVar(&expires, "expires", "", "Expiry as a duration from now (e.g. 720h); empty means non-expiring")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func runKeyCreate(ownerID int64, name, expires string) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	if _, err := st.GetAccount(ctx, ownerID); err != nil {
		return fmt.Errorf("account %d not found", ownerID)
	}

	// The CLI consults the same entitlement gate the API does.
	var gate entitlement.Gate
	if cfg.Entitlement.URL != "" {
		gate = entitlement.NewHTTPGate(cfg.Entitlement.URL, 5*time.Second)
	} else {
		gate = entitlement.StaticGate{Quota: cfg.Limits.DefaultQuota}
	}
	decision, err := gate.Authorize(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("entitlement check: %w", err)
	}
	if !decision.Allowed {
		return fmt.Errorf("account %d may not create API keys", ownerID)
	}

	var expiresAt *time.Time
	if expires != "" {
		d, err := time.ParseDuration(expires)
		if err != nil {
			return fmt.Errorf("invalid --expires duration: %w", err)
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	gen := credential.NewGenerator(cfg.Auth.KeyPrefix, cfg.Auth.KeySuffixLen)
	hasher := credential.NewHasher(cfg.Auth.BcryptCost)

	plaintext, err := gen.Generate()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	digest, err := hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	key := &model.APIKey{
		OwnerID:        ownerID,
		DisplayName:    name,
		Digest:         digest,
		Fingerprint:    credential.Fingerprint(plaintext),
		VisiblePrefix:  credential.ShortPrefix(plaintext),
		QuotaPerWindow: decision.QuotaPerWindow,
		IsActive:       true,
		ExpiresAt:      expiresAt,
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API key created:")
	fmt.Println()
	fmt.Printf("  Key:   %s\n", plaintext)
	fmt.Printf("  Owner: %d\n", ownerID)
	fmt.Printf("  Quota: %d requests per window\n", key.QuotaPerWindow)
	if name != "" {
		fmt.Printf("  Name:  %s\n", name)
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		ownerID    int64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(ownerID, jsonOutput)
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Owning account ID (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func runKeyList(ownerID int64, jsonOutput bool) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	keys, err := st.ListKeysForOwner(context.Background(), ownerID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found.")
		return nil
	}
	for _, k := range keys {
		status := "active"
		if !k.IsActive {
			status = "revoked"
		}
		fmt.Printf("%s  %-24s %-10s quota=%d  created=%s\n",
			k.VisiblePrefix, k.DisplayName, status, k.QuotaPerWindow,
			k.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	var ownerID int64

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(ownerID, args[0])
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Owning account ID (required)")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func runKeyRevoke(ownerID int64, keyID string) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.RevokeAPIKey(context.Background(), ownerID, keyID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	fmt.Printf("Revoked API key %s\n", keyID)
	return nil
}
