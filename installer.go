package graft

// Installer declares a group of bindings on a container.
type Installer interface {
	InstallBindings(c *Container) error
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(c *Container) error

// InstallBindings implements Installer.
func (f InstallerFunc) InstallBindings(c *Container) error {
	return f(c)
}

// Install runs installers in order and registers everything they bound.
// It stops at the first installer that fails.
//
// Example:
//
//	err := graft.Install(c,
//	    graft.InstallerFunc(func(c *graft.Container) error {
//	        graft.Bind[*Database](c).AsSingle()
//	        return nil
//	    }),
//	    &HTTPInstaller{Addr: ":8080"},
//	)
func Install(c *Container, installers ...Installer) error {
	for _, in := range installers {
		if err := in.InstallBindings(c); err != nil {
			return err
		}
	}

	return c.FlushBindings()
}
