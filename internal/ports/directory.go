package ports

import "context"

// PlayerDirectory resolves user ids into display names.
type PlayerDirectory interface {
	// DisplayNames returns a name for every requested id. Unknown ids map to themselves.
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}
