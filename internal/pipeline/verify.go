package pipeline

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/fluxbase-eu/jsonpns/internal/asset"
)

// verify re-parses a rewritten asset. Only syntax errors are reported; the
// transformed code esbuild produces is discarded.
func verify(a asset.Asset) error {
	result := api.Transform(a.Source, api.TransformOptions{
		Loader:     api.LoaderJS,
		Sourcefile: a.Name,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) == 0 {
		return nil
	}

	var errMsgs []string
	for _, msg := range result.Errors {
		if msg.Location != nil {
			errMsgs = append(errMsgs, fmt.Sprintf("%d:%d: %s", msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		errMsgs = append(errMsgs, msg.Text)
	}
	return fmt.Errorf("rewritten output does not parse: %s", strings.Join(errMsgs, "; "))
}
