package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/historyhub/internal/github"
)

func newGitHubCommand(opts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "github",
		Short: "Query the GitHub content service",
	}
	cmd.PersistentFlags().StringVar(&token, "token", os.Getenv("GITHUB_TOKEN"), "access token forwarded to the service")

	cmd.AddCommand(newGitHubTreeCommand(opts, &token))
	cmd.AddCommand(newGitHubFilesCommand(opts, &token))
	return cmd
}

func newGitHubTreeCommand(opts *RootOptions, token *string) *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "tree <owner>/<repo>",
		Short: "Print the repository tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, ok := strings.Cut(args[0], "/")
			if !ok || owner == "" || repo == "" {
				return fmt.Errorf("repository must be given as owner/repo, got %q", args[0])
			}

			client := github.NewClient(opts.cfg.GitHub, opts.logger)
			resp, err := client.LoadContent(cmd.Context(), github.ContentRequest{
				Owner:  owner,
				Repo:   repo,
				Branch: branch,
				Token:  *token,
			})
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), resp.TreeData)
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to read (service default when empty)")
	return cmd
}

func newGitHubFilesCommand(opts *RootOptions, token *string) *cobra.Command {
	return &cobra.Command{
		Use:   "files <path[@sha]>...",
		Short: "Print the contents of the listed files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]github.FileRef, 0, len(args))
			for _, arg := range args {
				path, sha, _ := strings.Cut(arg, "@")
				files = append(files, github.FileRef{Path: path, SHA: sha})
			}

			client := github.NewClient(opts.cfg.GitHub, opts.logger)
			resp, err := client.FileContents(cmd.Context(), github.FilesRequest{Files: files, Token: *token})
			if err != nil {
				return fmt.Errorf("fetch file contents: %w", err)
			}

			if opts.Format == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			for _, f := range resp.Files {
				if f.Error != "" {
					fmt.Fprintf(out, "==> %s (error: %s)\n", f.Path, f.Error)
					continue
				}
				fmt.Fprintf(out, "==> %s\n%s\n", f.Path, f.Content)
			}
			return nil
		},
	}
}
