package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ErrGameNotFound is returned by Game for an unknown ID.
var ErrGameNotFound = errors.New("game not found")

// Game is a disc image in the ISO directory. Everything but Size and Added
// comes from the file name; image headers are not parsed.
type Game struct {
	Added    time.Time
	ID       string
	Title    string
	DiscID   string
	Filename string
	Path     string
	Format   string
	Size     int64
}

// discID matches product codes such as ULUS10041 or NPJH-50465.
var discID = regexp.MustCompile(`(?:^|[^A-Za-z0-9])([A-Za-z]{4})[-_ ]?(\d{5})(?:$|[^0-9])`)

var imageFormats = map[string]string{
	".iso": "ISO",
	".cso": "CSO",
}

// gameFromFile derives a Game from a directory entry's name.
func gameFromFile(e Entry) (Game, bool) {
	ext := strings.ToLower(path.Ext(e.Name))
	format, ok := imageFormats[ext]
	if !ok || e.IsDir {
		return Game{}, false
	}
	stem := strings.TrimSuffix(e.Name, path.Ext(e.Name))

	g := Game{
		Filename: e.Name,
		Path:     e.Path,
		Format:   format,
		Size:     e.Size,
		Added:    e.ModTime,
		ID:       stem,
	}

	title := stem
	if m := discID.FindStringSubmatchIndex(stem); m != nil {
		g.DiscID = strings.ToUpper(stem[m[2]:m[3]]) + "-" + stem[m[4]:m[5]]
		g.ID = strings.ReplaceAll(g.DiscID, "-", "")
		title = stem[:m[2]] + " " + stem[m[5]:]
	}
	title = strings.NewReplacer("_", " ", ".", " ").Replace(title)
	title = strings.Trim(strings.Join(strings.Fields(title), " "), " -[]()")
	if title == "" {
		title = stem
	}
	g.Title = title
	return g, true
}

// Games lists the disc images in the configured ISO directory, sorted by
// title. A missing directory yields no games.
func (d *Device) Games(ctx context.Context) ([]Game, error) {
	entries, err := d.ListDirectory(ctx, d.cfg.ISOPath, true)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var games []Game
	for _, e := range entries {
		if g, ok := gameFromFile(e); ok {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool {
		if games[i].Title != games[j].Title {
			return games[i].Title < games[j].Title
		}
		return games[i].Path < games[j].Path
	})
	return games, nil
}

// Game returns the game with the given ID.
func (d *Device) Game(ctx context.Context, id string) (Game, error) {
	games, err := d.Games(ctx)
	if err != nil {
		return Game{}, err
	}
	for _, g := range games {
		if strings.EqualFold(g.ID, id) {
			return g, nil
		}
	}
	return Game{}, fmt.Errorf("%s: %w", id, ErrGameNotFound)
}
