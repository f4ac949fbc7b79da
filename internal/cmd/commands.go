package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/flo-mic/vmdeck/internal/batch"
)

// Actions defines the dashboard operations exposed on the command line.
type Actions interface {
	Init(cmd *cobra.Command, args []string) error
	Login(cmd *cobra.Command, args []string) error
	Logout(cmd *cobra.Command, args []string) error
	Status(cmd *cobra.Command, args []string) error
	List(cmd *cobra.Command, args []string) error
	Show(cmd *cobra.Command, args []string) error
	Create(cmd *cobra.Command, args []string) error
	Batch(cmd *cobra.Command, args []string) error
	Copy(cmd *cobra.Command, args []string) error
	RM(cmd *cobra.Command, args []string) error
	Wait(cmd *cobra.Command, args []string) error
	Watch(cmd *cobra.Command, args []string) error
}

// Commands builds every top-level subcommand.
func Commands(h Actions) []*cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the user configuration (backend URL, page size, refresh interval)",
		Args:  cobra.NoArgs,
		RunE:  h.Init,
	}
	initCmd.Flags().Int("page-size", 0, "VMs per page")
	initCmd.Flags().Duration("refresh-interval", 0, "dashboard refresh interval")

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the backend",
		Args:  cobra.NoArgs,
		RunE:  h.Login,
	}
	loginCmd.Flags().StringP("username", "u", "", "username")
	loginCmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "End the backend session",
		Args:  cobra.NoArgs,
		RunE:  h.Logout,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show who is logged in",
		Args:  cobra.NoArgs,
		RunE:  h.Status,
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List VMs with status",
		Args:    cobra.NoArgs,
		RunE:    h.List,
	}
	listCmd.Flags().Int("page", 1, "page to show (1-based)")
	listCmd.Flags().Int("page-size", 0, "VMs per page (default from config)")
	listCmd.Flags().BoolP("all", "a", false, "show every VM without paging")
	addOutputFlag(listCmd)

	showCmd := &cobra.Command{
		Use:     "show ID",
		Aliases: []string{"inspect"},
		Short:   "Show one VM and its execution result",
		Args:    cobra.ExactArgs(1),
		RunE:    h.Show,
	}
	addOutputFlag(showCmd)

	createCmd := &cobra.Command{
		Use:   "create [flags]",
		Short: "Create a VM",
		Args:  cobra.NoArgs,
		RunE:  h.Create,
	}
	createCmd.Flags().String("name", "", "VM name")
	addTemplateFlags(createCmd)

	batchCmd := &cobra.Command{
		Use:   "batch [flags]",
		Short: "Create several VMs sharing one configuration",
		Args:  cobra.NoArgs,
		RunE:  h.Batch,
	}
	batchCmd.Flags().StringP("template", "t", "", "YAML batch template (configuration and names)")
	batchCmd.Flags().StringArrayP("name", "n", nil, "VM name (repeatable)")
	batchCmd.Flags().String("names-file", "", "file with one VM name per line ('-' for stdin)")
	batchCmd.Flags().String("export-csv", "", "write the batch as CSV to this file instead of submitting it ('-' for stdout)")
	batchCmd.Flags().Lookup("export-csv").NoOptDefVal = batch.DefaultCSVName
	batchCmd.Flags().String("write-template", "", "write the batch as a YAML template to this file instead of submitting it")
	addTemplateFlags(batchCmd)

	copyCmd := &cobra.Command{
		Use:   "copy [flags] ID",
		Short: "Create a new VM with the configuration of an existing one",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Copy,
	}
	copyCmd.Flags().String("name", "", "name of the copy (default <name>-copy)")

	rmCmd := &cobra.Command{
		Use:     "rm [flags] ID [ID...]",
		Aliases: []string{"delete"},
		Short:   "Delete VM(s)",
		Args:    cobra.MinimumNArgs(1),
		RunE:    h.RM,
	}
	rmCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	waitCmd := &cobra.Command{
		Use:   "wait [flags] ID [ID...]",
		Short: "Wait until VM(s) leave the pending state",
		Args:  cobra.MinimumNArgs(1),
		RunE:  h.Wait,
	}
	waitCmd.Flags().Duration("timeout", 30*time.Minute, "give up after this long")
	waitCmd.Flags().Duration("interval", 5*time.Second, "poll interval")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the VM list and refresh it periodically",
		Args:  cobra.NoArgs,
		RunE:  h.Watch,
	}
	watchCmd.Flags().Int("page", 1, "page to show (1-based)")

	return []*cobra.Command{
		initCmd,
		loginCmd,
		logoutCmd,
		statusCmd,
		listCmd,
		showCmd,
		createCmd,
		batchCmd,
		copyCmd,
		rmCmd,
		waitCmd,
		watchCmd,
	}
}

// addTemplateFlags registers the shared VM configuration flags. Sizes take
// plain numbers as GB or units like 8G, 512GiB.
func addTemplateFlags(cmd *cobra.Command) {
	cmd.Flags().String("esxi-host", "", "ESXi host")
	cmd.Flags().String("vcenter", "", "vCenter server")
	cmd.Flags().String("datastore", "", "datastore")
	cmd.Flags().String("network", batch.DefaultNetwork, "network")
	cmd.Flags().Int("cpu", batch.DefaultCPUCount, "CPU count")
	cmd.Flags().String("memory", "", "memory size (default 4G)")
	cmd.Flags().String("disk", "", "disk size (default 40G)")
	cmd.Flags().String("iso", "", "ISO path, e.g. \"[datastore1] iso/win2019.iso\"")
	cmd.Flags().String("guest-os", batch.DefaultGuestOS, "vSphere guest OS identifier")
}
