package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"access-key-service/config"
	"access-key-service/internal/crypto"
	"access-key-service/internal/domain"
	"access-key-service/internal/infra"
	"access-key-service/internal/keygen"
	"access-key-service/internal/repository"
	"access-key-service/internal/usecase"
)

// adminCmd はAPIを経由せずデータベースと暗号バックエンドに直接接続する運用コマンド。
func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands that talk to the database and crypto backends directly",
	}
	cmd.AddCommand(adminVerifyCmd())
	cmd.AddCommand(adminRewrapCmd())
	return cmd
}

// adminVerifyCmd は標準入力から読んだシークレットが保存済みのものと一致するか検証する。
func adminVerifyCmd() *cobra.Command {
	var accessKeyID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a secret read from stdin against the stored one",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			service, closeFn, err := newAdminService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			err = service.VerifySecret(cmd.Context(), accessKeyID, secret)
			switch {
			case err == nil:
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			case errors.Is(err, domain.ErrSecretMismatch):
				return fmt.Errorf("secret does not match access key %q", accessKeyID)
			default:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "Access key ID (required)")
	_ = cmd.MarkFlagRequired("access-key-id")
	return cmd
}

// adminRewrapCmd は保存済みシークレットを現在有効な暗号バックエンドで暗号化し直す。
func adminRewrapCmd() *cobra.Command {
	var accessKeyID, ownerID string
	cmd := &cobra.Command{
		Use:   "rewrap",
		Short: "Re-encrypt stored secrets with the active crypto backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (accessKeyID == "") == (ownerID == "") {
				return fmt.Errorf("exactly one of --access-key-id or --owner is required")
			}

			service, closeFn, err := newAdminService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if accessKeyID != "" {
				changed, err := service.RewrapSecret(cmd.Context(), accessKeyID)
				if err != nil {
					return fmt.Errorf("rewrap failed: %w", err)
				}
				if changed {
					fmt.Fprintf(cmd.OutOrStdout(), "Re-encrypted access key %q\n", accessKeyID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Access key %q is already encrypted with the active backend\n", accessKeyID)
				}
				return nil
			}

			count, err := service.RewrapOwnerSecrets(cmd.Context(), ownerID)
			if err != nil {
				return fmt.Errorf("rewrap failed after %d key(s): %w", count, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Re-encrypted %d access key(s) for owner %q\n", count, ownerID)
			return nil
		},
	}
	cmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "Access key ID")
	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner ID")
	return cmd
}

func newAdminService(cmd *cobra.Command) (*usecase.AccessKeyService, func(), error) {
	cfg, db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	return buildAdminService(cmd.Context(), cmd.ErrOrStderr(), cfg, db, infra.NewCryptoRegistry)
}

// registryFactory は設定から暗号バックエンドのRegistryを構築する。
type registryFactory func(ctx context.Context, cfg config.CryptoConfig, metrics *crypto.Metrics) (*crypto.Registry, error)

// buildAdminService はDBと暗号バックエンドからサービスを組み立てる。
// 返す closeFn はRegistryとDBの両方を閉じる。失敗時はここでDBを閉じる。
func buildAdminService(ctx context.Context, errOut io.Writer, cfg *config.Config, db *gorm.DB, newRegistry registryFactory) (*usecase.AccessKeyService, func(), error) {
	registry, err := newRegistry(ctx, cfg.Crypto, nil)
	if err != nil {
		closeDB(errOut, db)
		return nil, nil, fmt.Errorf("initializing crypto backends: %w", err)
	}
	closeFn := func() {
		if err := registry.Close(); err != nil {
			fmt.Fprintf(errOut, "closing crypto backends: %v\n", err)
		}
		closeDB(errOut, db)
	}
	return usecase.NewAccessKeyService(repository.NewAccessKeyRepository(db), registry, keygen.NewGenerator()), closeFn, nil
}

// readSecret は入力の先頭行をシークレットとして読む。
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", fmt.Errorf("secret must be provided on stdin")
	}
	return secret, nil
}
