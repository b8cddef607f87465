package commands

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/PhotonicGluon/Excalibur/internal/cli/output"
	"github.com/PhotonicGluon/Excalibur/internal/cli/prompt"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/keygen"
	"github.com/PhotonicGluon/Excalibur/pkg/config"
	"github.com/PhotonicGluon/Excalibur/pkg/exef"
	"github.com/PhotonicGluon/Excalibur/pkg/srp"
	"github.com/PhotonicGluon/Excalibur/pkg/store"
	"github.com/PhotonicGluon/Excalibur/pkg/vault"
)

// saltSize is the size of freshly generated enrolment salts.
const saltSize = 32

// minPasswordLength is enforced only at enrolment time; the server never
// sees passwords afterwards.
const minPasswordLength = 8

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage enrolled users (add, delete, list)",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Enrol a new user",
	Long: `Enrol a new user directly against the user store.

This performs the same enrolment a client would: it derives the SRP verifier
and the account unlock key from the password, generates a fresh vault key,
and stores only the verifier, the salts, and the sealed vault key. The
password itself is never stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled users",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user",
	Long: `Delete a user from the user store.

The user's vault files are left on disk; remove them manually if they are no
longer needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserDelete,
}

var deleteYes bool

func init() {
	userDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip confirmation prompt")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDeleteCmd)
}

func openStore() (*config.Config, *store.Store, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open user store: %w", err)
	}
	return cfg, st, nil
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return buf, nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	username := args[0]

	cfg, st, err := openStore()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if exists, err := st.HasUser(ctx, username); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("user %q already exists", username)
	}

	password, err := prompt.PasswordWithConfirmation("Password", "Confirm password", minPasswordLength)
	if err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			return nil
		}
		return err
	}

	aukSalt, err := randomBytes(saltSize)
	if err != nil {
		return err
	}
	srpSalt, err := randomBytes(saltSize)
	if err != nil {
		return err
	}

	group, err := srp.GroupForBits(cfg.Security.SRPGroupBits)
	if err != nil {
		return err
	}
	x := new(big.Int).SetBytes(keygen.DeriveKey(password, srpSalt))
	verifier := group.ComputeVerifier(x)

	// The vault key never exists outside this process in the clear; only
	// its sealed form is stored.
	vaultKey, err := randomBytes(keygen.KeySize)
	if err != nil {
		return err
	}
	auk := keygen.DeriveKey(password, aukSalt)
	keyEnc, err := exef.Seal(auk, nil, vaultKey)
	if err != nil {
		return fmt.Errorf("sealing vault key: %w", err)
	}

	user := &store.User{
		Username:    username,
		AukSalt:     aukSalt,
		SRPGroup:    cfg.Security.SRPGroupBits,
		SRPSalt:     srpSalt,
		SRPVerifier: verifier.Bytes(),
		KeyEnc:      keyEnc,
	}
	if err := st.AddUser(ctx, user); err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}

	v, err := vault.New(cfg.Server.VaultFolder)
	if err != nil {
		return err
	}
	if err := v.CreateUserRoot(username); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}

	fmt.Printf("User %q enrolled with %d-bit SRP group\n", username, cfg.Security.SRPGroupBits)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}

	users, err := st.ListUsers(context.Background())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users enrolled")
		return nil
	}

	table := output.NewTable("Username", "SRP Group", "Verifier Bytes")
	for _, u := range users {
		table.AddRow(u.Username, strconv.Itoa(u.SRPGroup), strconv.Itoa(len(u.SRPVerifier)))
	}
	return table.Render(os.Stdout)
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	username := args[0]

	_, st, err := openStore()
	if err != nil {
		return err
	}

	if !deleteYes {
		ok, err := prompt.Confirm(fmt.Sprintf("Delete user %q? Their vault will become unreadable", username), false)
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}
	}

	if err := st.DeleteUser(context.Background(), username); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return fmt.Errorf("user %q does not exist", username)
		}
		return err
	}

	fmt.Printf("User %q deleted\n", username)
	return nil
}
