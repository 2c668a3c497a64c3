// Package presence implements the presence sweep: for a selected reference
// tip, walk its tree, parse every blob matching the configured suffix
// through the shared parse cache, and collect the located entities present
// in that snapshot.
package presence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jlefever/cochange-tool/internal/entity"
	"github.com/jlefever/cochange-tool/internal/parse"
	"github.com/jlefever/cochange-tool/internal/parsecache"
	"github.com/jlefever/cochange-tool/pkg/gitlib"
)

// Sweep walks tip's tree pre-order (gitlib.Commit.Files, itself a pre-order
// equivalent full-tree walk), parses every blob whose path matches suffix
// through cache, and returns every LocatedEntity found across the tree.
func Sweep(
	ctx context.Context,
	repo *gitlib.Repository,
	p *parse.Parser,
	cache *parsecache.Cache,
	tip *gitlib.Commit,
	suffix string,
) ([]entity.LocatedEntity, error) {
	files, err := tip.Files()
	if err != nil {
		return nil, fmt.Errorf("list tree files: %w", err)
	}

	var located []entity.LocatedEntity

	for {
		file, nextErr := files.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}

		if nextErr != nil {
			return nil, fmt.Errorf("iterate tree files: %w", nextErr)
		}

		if !strings.HasSuffix(strings.ToLower(file.Name), strings.ToLower(suffix)) {
			continue
		}

		fileLocated, parseErr := cache.GetOrParse(ctx, repo, p, file.Name, file.Hash)
		if parseErr != nil {
			return nil, fmt.Errorf("parse %s: %w", file.Name, parseErr)
		}

		located = append(located, fileLocated...)
	}

	return located, nil
}
