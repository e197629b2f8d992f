// Package admin implements the blogadmin command tree. Commands operate
// directly on the store and the account and post services.
package admin

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"example.com/blogger/internal/account"
	"example.com/blogger/internal/posts"
	"example.com/blogger/internal/store"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

// App carries the dependencies shared by every command.
type App struct {
	Store    store.StoreInterface
	Accounts *account.Service
	Posts    *posts.Service
}

var (
	success = color.New(color.FgGreen).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
)

// NewRootCmd builds the blogadmin command tree around app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "blogadmin [command] [flags]",
		Short:         "Inspect and manage blogger users and posts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(usersCmd(app), postsCmd(app), statsCmd(app))
	return root
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func usersCmd(app *App) *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "List or create accounts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := app.Store.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("error listing users: %w", err)
			}
			sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

			table := newTable(cmd.OutOrStdout(), "Username", "ID", "Joined")
			for _, u := range all {
				table.Append([]string{u.Username, u.ID, formatTime(u.Created)})
			}
			table.Render()
			return nil
		},
	}

	var password string
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := app.Accounts.CreateUser(cmd.Context(), args[0], password)
			if err != nil {
				return fmt.Errorf("error creating user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", success("Created"), u.Username, dim(u.ID))
			return nil
		},
	}
	create.Flags().StringVarP(&password, "password", "p", "", "password for the new account")
	_ = create.MarkFlagRequired("password")

	users.AddCommand(list, create)
	return users
}

func postsCmd(app *App) *cobra.Command {
	postsRoot := &cobra.Command{
		Use:   "posts",
		Short: "Browse posts",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list <username>",
		Short: "List a user's most recent posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := app.Store.GetUserByUsername(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("error loading user: %w", err)
			}
			if u == nil {
				return fmt.Errorf("no user named %q", args[0])
			}

			w, err := app.Posts.Recent(cmd.Context(), u.ID, limit)
			if err != nil {
				return fmt.Errorf("error listing posts: %w", err)
			}

			out := cmd.OutOrStdout()
			table := newTable(out, "ID", "Created", "Title")
			for _, p := range w.Posts {
				table.Append([]string{p.ID, formatTime(p.Created), p.Title})
			}
			table.Render()
			switch {
			case w.NextLimit > 0:
				fmt.Fprintln(out, dim("More posts available, use --limit "+strconv.Itoa(w.NextLimit)))
			case w.HasMore:
				fmt.Fprintln(out, dim("More posts available beyond the maximum window"))
			}
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", posts.DefaultWindow, "number of posts to show")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one post and its neighbors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.Posts.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("error loading post: %w", err)
			}
			if p == nil {
				return errors.New("post not found")
			}
			nb, err := app.Posts.Neighbors(cmd.Context(), *p)
			if err != nil {
				return fmt.Errorf("error loading neighbors: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, color.New(color.Bold).Sprint(p.Title))
			fmt.Fprintln(out, dim("by "+p.OwnerUsername+" at "+formatTime(p.Created)))
			fmt.Fprintln(out)
			fmt.Fprintln(out, p.Content)
			fmt.Fprintln(out)
			if nb.Next != nil {
				fmt.Fprintf(out, "Next: %s %s\n", nb.Next.ID, nb.Next.Title)
			}
			if nb.Prev != nil {
				fmt.Fprintf(out, "Prev: %s %s\n", nb.Prev.ID, nb.Prev.Title)
			}
			return nil
		},
	}

	postsRoot.AddCommand(list, show)
	return postsRoot
}

func statsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show post counts per user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := app.Store.PostCounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("error loading post counts: %w", err)
			}
			sort.Slice(counts, func(i, j int) bool {
				if counts[i].Count != counts[j].Count {
					return counts[i].Count > counts[j].Count
				}
				return counts[i].OwnerID < counts[j].OwnerID
			})

			table := newTable(cmd.OutOrStdout(), "Username", "Posts")
			for _, c := range counts {
				name := c.OwnerID
				u, err := app.Store.GetUserByID(cmd.Context(), c.OwnerID)
				if err != nil {
					return fmt.Errorf("error loading user: %w", err)
				}
				if u != nil {
					name = u.Username
				}
				table.Append([]string{name, strconv.FormatInt(c.Count, 10)})
			}
			table.Render()
			return nil
		},
	}
}
