package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xeonx/timeago"

	"github.com/fsadmin-io/fsadmin/internal/types"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Find and manage users",
}

var userFindCmd = &cobra.Command{
	Use:   "find <id|email|name>",
	Short: "Find a user by ID, email address, or name",
	Long: `Find resolves a user across both the requester and agent pools.

A numeric argument is treated as a user ID, an argument containing '@'
as an email address, and anything else as a name search ("first",
"first last", or --last for a last-name-only search). Name searches
fall back to client-side filtering and fuzzy matching when the API
rejects the structured query.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUserFind,
}

var userUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields on a user",
	Long: `Update applies field changes to a user, routing automatically to the
requester or agent pool. Fields are given as key=value pairs, e.g.:

  fsadmin user update 42 first_name=Ana department_ids=7 job_title="Support Lead"

department_ids accepts a single ID or a comma-separated list. With
--dry-run the merged record is shown without touching the API.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runUserUpdate,
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Deactivate a user's account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserLifecycle("deactivate"),
}

var userActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Reactivate a deactivated user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserLifecycle("activate"),
}

var userForgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Permanently delete a requester and their tickets",
	Long: `Forget permanently deletes a requester along with all of their
tickets, as required for data-erasure requests. Agents cannot be
forgotten. This cannot be undone; pass --yes to confirm.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserForget,
}

var userRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show users resolved earlier in this session",
	RunE:  runUserRecent,
}

var (
	userFindLastName string
	userFindNoFuzzy  bool
	userForgetYes    bool
)

func init() {
	userFindCmd.Flags().StringVar(&userFindLastName, "last", "", "Search by last name only")
	userFindCmd.Flags().BoolVar(&userFindNoFuzzy, "no-fuzzy", false, "Disable fuzzy matching fallback")
	userForgetCmd.Flags().BoolVar(&userForgetYes, "yes", false, "Confirm permanent deletion")

	userCmd.AddCommand(userFindCmd)
	userCmd.AddCommand(userUpdateCmd)
	userCmd.AddCommand(userDeactivateCmd)
	userCmd.AddCommand(userActivateCmd)
	userCmd.AddCommand(userForgetCmd)
	userCmd.AddCommand(userRecentCmd)
}

func runUserFind(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	term := strings.Join(args, " ")

	if id, err := strconv.ParseInt(term, 10, 64); err == nil {
		user, err := a.client.Users.ByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			color.Yellow("No user found with ID %d", id)
			return nil
		}
		printUser(user)
		return nil
	}

	if strings.Contains(term, "@") {
		user, err := a.client.Users.ByEmail(ctx, term)
		if err != nil {
			return err
		}
		if user == nil {
			color.Yellow("No user found with email %s", term)
			return nil
		}
		printUser(user)
		return nil
	}

	first, last := splitName(term, userFindLastName)
	matches := a.client.Users.SearchByName(ctx, first, last, !userFindNoFuzzy)
	if len(matches) == 0 {
		color.Yellow("No users matched %q", term)
		return nil
	}
	fmt.Printf("Found %d user(s):\n\n", len(matches))
	for i := range matches {
		printUserLine(&matches[i])
	}
	return nil
}

// splitName interprets the positional term as "first" or "first last",
// unless an explicit last name was flagged.
func splitName(term, lastFlag string) (string, string) {
	if lastFlag != "" {
		return "", lastFlag
	}
	parts := strings.Fields(term)
	if len(parts) >= 2 {
		return parts[0], strings.Join(parts[1:], " ")
	}
	return term, ""
}

func runUserUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", args[0])
	}

	fields, err := parseFieldArgs(args[1:])
	if err != nil {
		return err
	}

	updated := a.client.Users.Update(cmd.Context(), id, fields)
	if updated == nil {
		color.Red("Update failed for user %d (see log for details)", id)
		return nil
	}
	if a.client.DryRun() {
		color.Cyan("Dry run: user %d would become:", id)
	} else {
		color.Green("Updated user %d:", id)
	}
	printUser(updated)
	return nil
}

// parseFieldArgs turns key=value arguments into an update payload.
// department_ids keeps its raw string; the client coerces it.
func parseFieldArgs(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		if key == "department_ids" && strings.Contains(value, ",") {
			parts := strings.Split(value, ",")
			list := make([]any, len(parts))
			for i, p := range parts {
				list[i] = strings.TrimSpace(p)
			}
			fields[key] = list
			continue
		}
		fields[key] = value
	}
	return fields, nil
}

func runUserLifecycle(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		var ok bool
		if action == "deactivate" {
			ok = a.client.Users.Deactivate(cmd.Context(), id)
		} else {
			ok = a.client.Users.Activate(cmd.Context(), id)
		}
		if !ok {
			color.Red("Failed to %s user %d (see log for details)", action, id)
			return nil
		}
		if a.client.DryRun() {
			color.Cyan("Dry run: would %s user %d", action, id)
		} else {
			color.Green("Successfully %sd user %d", action, id)
		}
		return nil
	}
}

func runUserForget(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", args[0])
	}
	if !userForgetYes && !a.client.DryRun() {
		return fmt.Errorf("forget permanently deletes the requester and their tickets; pass --yes to confirm")
	}

	if !a.client.Users.Forget(cmd.Context(), id) {
		color.Red("Failed to forget user %d (see log for details)", id)
		return nil
	}
	if a.client.DryRun() {
		color.Cyan("Dry run: would permanently delete requester %d", id)
	} else {
		color.Green("Permanently deleted requester %d", id)
	}
	return nil
}

func runUserRecent(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	recent := a.client.Users.Recent()
	if len(recent) == 0 {
		fmt.Println("No users resolved yet in this session.")
		return nil
	}
	for i := range recent {
		printUserLine(&recent[i])
	}
	return nil
}

func printUser(user *types.User) {
	bold := color.New(color.Bold)
	bold.Printf("%s", user.FullName())
	fmt.Printf(" (ID %d, %s)\n", user.ID, user.Pool.Label())
	fmt.Printf("  Email:       %s\n", user.BestEmail())
	fmt.Printf("  Active:      %v\n", user.Active)
	if user.JobTitle != "" {
		fmt.Printf("  Job title:   %s\n", user.JobTitle)
	}
	if len(user.DepartmentIDs) > 0 {
		ids, _ := json.Marshal(user.DepartmentIDs)
		fmt.Printf("  Departments: %s\n", ids)
	}
	if user.LastLoginAt != nil {
		fmt.Printf("  Last login:  %s\n", timeago.English.Format(*user.LastLoginAt))
	}
	if !user.CreatedAt.IsZero() {
		fmt.Printf("  Created:     %s\n", timeago.English.Format(user.CreatedAt))
	}
}

func printUserLine(user *types.User) {
	status := color.GreenString("active")
	if !user.Active {
		status = color.RedString("inactive")
	}
	fmt.Printf("  %6d  %-30s %-35s %s (%s)\n",
		user.ID, user.FullName(), user.BestEmail(), status, user.Pool.Label())
}
