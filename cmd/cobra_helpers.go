package cmd

import "github.com/spf13/cobra"

func addCommand(parent *cobra.Command, child *cobra.Command, flags ...func(cmd *cobra.Command)) *cobra.Command {
	for _, fn := range flags {
		fn(child)
	}
	child = TraverseRunHooks(child)
	parent.AddCommand(child)

	return child
}

// TraverseRunHooks modifies c's PersistentPreRunE (when present) so that it
// first invokes the hook of the closest parent that provides one. Cobra on its
// own only runs the closest hook, which would skip the root's logging setup.
func TraverseRunHooks(c *cobra.Command) *cobra.Command {
	preRunE := c.PersistentPreRunE
	if preRunE == nil {
		return c
	}

	c.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		for p := c.Parent(); p != nil; p = p.Parent() {
			if p.PersistentPreRunE != nil {
				if err := p.PersistentPreRunE(cmd, args); err != nil {
					return err
				}
				break
			}
		}
		return preRunE(cmd, args)
	}
	return c
}
