package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/nugget/relaybot/internal/artifact"
)

// RegisterArtifactTool adds create_artifact backed by store.
func (r *Registry) RegisterArtifactTool(store artifact.Store) {
	r.Register(&Tool{
		Name:        "create_artifact",
		Description: "Create a file and send it to the user as an attachment.",
		Example:     map[string]string{"filename": "story.txt", "content": "Once upon a time..."},
		ArtifactArg: "filename",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			name := args["filename"]
			if err := store.Put(ctx, name, args["content"]); err != nil {
				if errors.Is(err, artifact.ErrInvalidName) {
					return `Error: Invalid filename. For security, filenames cannot contain '..', '/', or '\'.`, err
				}
				return fmt.Sprintf("Error: Could not create artifact. Reason: %v", err), err
			}
			return fmt.Sprintf("Success: Artifact '%s' was created and is available for download.", name), nil
		},
	})
}
