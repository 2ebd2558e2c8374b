// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// version はビルド時に -ldflags "-X main.version=..." で上書きされる。
var version = "dev"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "keyctl",
		Short:         "Access Key Service CLI",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("KEYCTL_API_URL")
			}
			apiURL = strings.TrimRight(apiURL, "/")
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set KEYCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(revokeCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "keyctl version %s\n", version)
		},
	}
}

type accessKey struct {
	AccessKeyID string `json:"access_key_id"`
	OwnerID     string `json:"owner_id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// createCmd はアクセスキーの発行コマンド。
func createCmd() *cobra.Command {
	var ownerID, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new access key for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"owner_id": ownerID, "description": description}
			body, err := callAPI(cmd.Context(), http.MethodPost, "/v1/access-keys", payload, http.StatusCreated)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output == "json" {
				fmt.Fprintln(w, string(body))
				return nil
			}
			var result struct {
				AccessKeyID     string `json:"access_key_id"`
				SecretAccessKey string `json:"secret_access_key"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Fprintf(w, "Access Key ID:     %s\n", result.AccessKeyID)
			fmt.Fprintf(w, "Secret Access Key: %s\n", result.SecretAccessKey)
			fmt.Fprintln(w, "The secret is shown only once. Store it now.")
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner ID (required)")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// getCmd はアクセスキーのメタデータ取得コマンド。
func getCmd() *cobra.Command {
	var accessKeyID string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show metadata of an access key",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(cmd.Context(), http.MethodGet, "/v1/access-keys/"+url.PathEscape(accessKeyID), nil, http.StatusOK)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output == "json" {
				fmt.Fprintln(w, string(body))
				return nil
			}
			var key accessKey
			if err := json.Unmarshal(body, &key); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			return printAccessKeys(w, []accessKey{key})
		},
	}
	cmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "Access key ID (required)")
	_ = cmd.MarkFlagRequired("access-key-id")
	return cmd
}

// listCmd はオーナーのアクセスキー一覧の取得コマンド。
func listCmd() *cobra.Command {
	var ownerID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List access keys of an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/access-keys?" + url.Values{"owner_id": {ownerID}}.Encode()
			body, err := callAPI(cmd.Context(), http.MethodGet, path, nil, http.StatusOK)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output == "json" {
				fmt.Fprintln(w, string(body))
				return nil
			}
			var result struct {
				AccessKeys []accessKey `json:"access_keys"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			return printAccessKeys(w, result.AccessKeys)
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner ID (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// revokeCmd はアクセスキーの失効コマンド。何度実行しても結果は同じ。
func revokeCmd() *cobra.Command {
	var accessKeyID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an access key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := callAPI(cmd.Context(), http.MethodDelete, "/v1/access-keys/"+url.PathEscape(accessKeyID), nil, http.StatusNoContent); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output == "json" {
				fmt.Fprintln(w, "{}")
			} else {
				fmt.Fprintf(w, "Revoked access key %q\n", accessKeyID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "Access key ID (required)")
	_ = cmd.MarkFlagRequired("access-key-id")
	return cmd
}

// callAPI はAPIを呼び出し、期待したステータスであればレスポンスボディを返す。
func callAPI(ctx context.Context, method, path string, payload any, wantStatus int) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set KEYCTL_API_URL)")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func printAccessKeys(out io.Writer, keys []accessKey) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ACCESS_KEY_ID\tOWNER_ID\tSTATUS\tCREATED_AT\tDESCRIPTION")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.AccessKeyID, k.OwnerID, k.Status, k.CreatedAt, k.Description)
	}
	return w.Flush()
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code          string `json:"code"`
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		if errResp.CorrelationID != "" {
			return fmt.Errorf("Error: %s (%s, correlation_id=%s)", errResp.Message, errResp.Code, errResp.CorrelationID)
		}
		return fmt.Errorf("Error: %s (%s)", errResp.Message, errResp.Code)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
