package manager

import (
	"addonsync"
)

// ComputeDelta returns the declared dependencies that the installed
// snapshot does not satisfy, in declaration order:
//
//   - mandatory and not installed: include;
//   - installed, a minimum is declared, and the installed version is older
//     than it: include ("no version" is older than any declared minimum);
//   - optional and not installed: never included.
//
// It is a pure function of the declaration and the snapshot.
func ComputeDelta(declared []addonsync.Dependency, installed addonsync.Installed) []addonsync.Dependency {
	var delta []addonsync.Dependency
	for _, dep := range declared {
		current, ok := installed[dep.Name]
		switch {
		case !ok:
			if !dep.Optional {
				delta = append(delta, dep)
			}
		case !dep.MinVersion.IsZero() && current.Version.OlderThan(dep.MinVersion):
			delta = append(delta, dep)
		}
	}
	return delta
}
