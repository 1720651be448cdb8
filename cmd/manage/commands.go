package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"agentchat/internal/app"
	"agentchat/internal/bootstrap"
	"agentchat/internal/config"
	"agentchat/internal/platform/database"
	"agentchat/internal/repository"
)

// storeOpener returns a migrated database handle and its release func.
type storeOpener func(ctx context.Context) (*gorm.DB, func(), error)

func openStore(ctx context.Context) (*gorm.DB, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config failed: %w", err)
	}
	db, err := bootstrap.OpenStore(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = database.Close(db) }, nil
}

func newRootCmd(open storeOpener) *cobra.Command {
	root := &cobra.Command{
		Use:           "manage",
		Short:         "Management commands for agentchat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGenerateKeyCmd(open), newCreateSuperuserCmd(open))
	return root
}

func newGenerateKeyCmd(open storeOpener) *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a new service API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, release, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			keys := app.NewAPIKeyService(repository.NewAPIKeyRepository(db), 0)
			key, err := keys.Generate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "API key generated successfully.")
			if show {
				fmt.Fprintf(out, "API key: %s\n", key.Key)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the generated key")
	return cmd
}

func newCreateSuperuserCmd(open storeOpener) *cobra.Command {
	var input app.SuperuserInput
	cmd := &cobra.Command{
		Use:   "create-superuser",
		Short: "Create a superuser, prompting for missing fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, release, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			out := cmd.OutOrStdout()
			in := bufio.NewReader(cmd.InOrStdin())
			for _, f := range []struct {
				label string
				value *string
			}{
				{"Name", &input.Name},
				{"Email", &input.Email},
				{"Phone", &input.Phone},
				{"Password", &input.Password},
			} {
				if strings.TrimSpace(*f.value) != "" {
					continue
				}
				if *f.value, err = prompt(in, out, f.label); err != nil {
					return err
				}
			}

			auth := app.NewAuthService(repository.NewUserRepository(db), nil)
			user, err := auth.CreateSuperuser(cmd.Context(), input)
			switch {
			case errors.Is(err, app.ErrSuperuserExists):
				fmt.Fprintln(out, "A superuser already exists. Drop --check-exist to create another one.")
				return nil
			case errors.Is(err, app.ErrInvalidInput):
				return errors.New("all fields are required")
			case err != nil:
				return err
			}
			fmt.Fprintf(out, "Superuser created: ID=%d, Name=%s\n", user.ID, user.Name)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&input.Name, "name", "", "superuser name")
	flags.StringVar(&input.Email, "email", "", "superuser email")
	flags.StringVar(&input.Phone, "phone", "", "superuser phone")
	flags.StringVar(&input.Password, "password", "", "superuser password")
	flags.BoolVar(&input.CheckExist, "check-exist", false, "do nothing when a superuser already exists")
	return cmd
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s failed: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}
