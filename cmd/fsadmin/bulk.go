package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fsadmin-io/fsadmin/internal/csvio"
	"github.com/fsadmin-io/fsadmin/internal/types"
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Bulk user operations driven by CSV files",
}

var bulkTemplateCmd = &cobra.Command{
	Use:   "template <type> <path>",
	Short: "Write a starter CSV for a bulk operation",
	Long: `Template writes a CSV with the column set a bulk operation expects,
plus one sample row. Types: ` + strings.Join(csvio.TemplateTypes(), ", ") + `.`,
	Args: cobra.ExactArgs(2),
	RunE: runBulkTemplate,
}

var bulkApplyCmd = &cobra.Command{
	Use:   "apply <type> <file>",
	Short: "Apply a bulk operation from a CSV file",
	Long: `Apply validates the CSV, reports rejected rows, and runs the chosen
operation for every valid row. Users are resolved by Email. Supported
types:

  department   set the user's department (columns: Email, Department)
  deactivate   deactivate the account (columns: Email, Reason)

Run with --dry-run first; rejected rows are written to an error report
next to the input file.`,
	Args: cobra.ExactArgs(2),
	RunE: runBulkApply,
}

func init() {
	bulkCmd.AddCommand(bulkTemplateCmd)
	bulkCmd.AddCommand(bulkApplyCmd)
}

func runBulkTemplate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	proc := csvio.NewProcessor(a.client.Logger())
	if err := proc.WriteTemplate(args[0], args[1]); err != nil {
		return err
	}
	color.Green("Template written to %s", args[1])
	return nil
}

func runBulkApply(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	opType, path := args[0], args[1]
	ctx := cmd.Context()

	var apply func(context.Context, *app, csvio.Row) (bool, string)
	switch opType {
	case "department":
		apply = applyDepartmentRow
	case "deactivate":
		apply = applyDeactivateRow
	default:
		return fmt.Errorf("unsupported bulk operation %q (supported: department, deactivate)", opType)
	}

	proc := csvio.NewProcessor(a.client.Logger())
	rows, err := proc.ReadFile(path)
	if err != nil {
		return err
	}

	valid, invalid := proc.ValidateUserRows(rows)
	if len(invalid) > 0 {
		errPath := strings.TrimSuffix(path, ".csv") + "_errors.csv"
		if err := proc.WriteErrorReport(invalid, errPath); err != nil {
			return err
		}
		color.Yellow("%d invalid row(s) skipped; details in %s", len(invalid), errPath)
	}
	if len(valid) == 0 {
		color.Yellow("No valid rows to process.")
		return nil
	}

	if a.client.DryRun() {
		color.Cyan("Dry run: simulating %d %s operation(s)", len(valid), opType)
	}

	succeeded, failed := 0, 0
	for _, row := range valid {
		ok, detail := apply(ctx, a, row)
		if ok {
			succeeded++
			color.Green("  ✓ %s %s", row["Email"], detail)
		} else {
			failed++
			color.Red("  ✗ %s %s", row["Email"], detail)
		}
	}

	fmt.Println()
	fmt.Printf("Done: %d succeeded, %d failed, %d skipped as invalid.\n", succeeded, failed, len(invalid))
	return nil
}

// applyDepartmentRow resolves the row's user and department by name and
// routes the department change through the normal update path.
func applyDepartmentRow(ctx context.Context, a *app, row csvio.Row) (bool, string) {
	user, err := a.client.Users.ByEmail(ctx, strings.TrimSpace(row["Email"]))
	if err != nil || user == nil {
		return false, "user not found"
	}

	deptName := strings.TrimSpace(row["Department"])
	if deptName == "" {
		return false, "missing Department column"
	}
	dept, err := a.client.Departments.ByName(ctx, deptName)
	if err != nil {
		return false, "department lookup failed"
	}
	if dept == nil {
		return false, fmt.Sprintf("unknown department %q", deptName)
	}

	updated := a.client.Users.Update(ctx, user.ID, map[string]any{
		"department_ids": []int64{dept.ID},
	})
	if updated == nil {
		return false, "update failed (see log)"
	}
	return true, fmt.Sprintf("-> %s", dept.Name)
}

// applyDeactivateRow resolves the row's user and deactivates the account,
// recording the operator-supplied reason in the log.
func applyDeactivateRow(ctx context.Context, a *app, row csvio.Row) (bool, string) {
	user, err := a.client.Users.ByEmail(ctx, strings.TrimSpace(row["Email"]))
	if err != nil || user == nil {
		return false, "user not found"
	}
	if reason := strings.TrimSpace(row["Reason"]); reason != "" {
		a.client.Logger().Infof("deactivating %s (%d): %s", user.BestEmail(), user.ID, reason)
	}
	if !a.client.Users.Deactivate(ctx, user.ID) {
		return false, "deactivation failed (see log)"
	}
	return true, deactivateDetail(user)
}

func deactivateDetail(user *types.User) string {
	return fmt.Sprintf("(%s, ID %d) deactivated", user.Pool.Label(), user.ID)
}
