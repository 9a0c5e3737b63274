package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/specdist/internal/api"
	"github.com/lox/specdist/internal/dataset"
	"github.com/lox/specdist/internal/kde"
	"github.com/lox/specdist/internal/mapper"
	"github.com/lox/specdist/internal/models"
	"github.com/lox/specdist/internal/publish"
	"github.com/lox/specdist/internal/render"
	"github.com/lox/specdist/internal/store"
)

type Globals struct {
	DB        string `help:"Path to the sqlite cache database." default:"data/specdist.db"`
	SourceURL string `help:"Dataset bundle URL." env:"SPECDIST_SOURCE_URL" default:"https://data.lox.dev/specdist/species-bundle-v1.zip"`
	FTPHost   string `help:"Optional FTP mirror host:port, used instead of HTTP when set." env:"SPECDIST_FTP_HOST"`
	FTPPath   string `help:"Bundle path on the FTP mirror." env:"SPECDIST_FTP_PATH" default:"/pub/specdist/species-bundle-v1.zip"`
}

func (g *Globals) openStore() (*store.Store, *sql.DB, error) {
	if dir := filepath.Dir(g.DB); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, db, nil
}

func (g *Globals) loader(st *store.Store) *dataset.Loader {
	var source dataset.Source
	if g.FTPHost != "" {
		source = dataset.NewFTPSource(g.FTPHost, g.FTPPath)
	} else {
		source = dataset.NewHTTPSource(g.SourceURL)
	}
	return dataset.NewLoader(st, source)
}

// renderFlags are shared by every command that runs the estimation pipeline.
type renderFlags struct {
	Species   []string `help:"Species labels to map. Defaults to every species in the bundle." short:"s"`
	Stride    int      `help:"Evaluation lattice stride over the native raster resolution." default:"5"`
	Bandwidth float64  `help:"Kernel bandwidth in radians." default:"0.04"`
	Kernel    string   `help:"Kernel function." enum:"gaussian,exponential" default:"gaussian"`
	Metric    string   `help:"Distance metric." enum:"haversine,euclidean" default:"haversine"`
	Coverage  string   `help:"Reference coverage name. Defaults to the bundle's first raster."`
	Region    string   `help:"Restrict records to lat,lon,radius_km around a point."`
}

func (f renderFlags) options() (mapper.Options, error) {
	kernel, err := kde.ParseKernel(f.Kernel)
	if err != nil {
		return mapper.Options{}, err
	}
	metric, err := kde.ParseMetric(f.Metric)
	if err != nil {
		return mapper.Options{}, err
	}
	return mapper.Options{
		Bandwidth: f.Bandwidth,
		Kernel:    kernel,
		Metric:    metric,
		Stride:    f.Stride,
		Coverage:  f.Coverage,
	}, nil
}

// applyRegion narrows the bundle's records to the requested region, if any.
func (f renderFlags) applyRegion(bundle *models.Bundle) (*models.Bundle, error) {
	if f.Region == "" {
		return bundle, nil
	}
	parts := strings.Split(f.Region, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("region must be lat,lon,radius_km, got %q", f.Region)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("region component %q: %w", p, err)
		}
		vals[i] = v
	}

	idx := dataset.NewIndex(bundle.Records)
	records, err := idx.WithinRadius(vals[0], vals[1], vals[2])
	if err != nil {
		return nil, err
	}
	log.Printf("region filter kept %d of %d records", len(records), len(bundle.Records))

	narrowed := *bundle
	narrowed.Records = records
	return &narrowed, nil
}

func (f renderFlags) labels(bundle *models.Bundle) []string {
	if len(f.Species) > 0 {
		return f.Species
	}
	return bundle.Species()
}

type FetchCmd struct {
	Force bool `help:"Refetch even when a cached bundle exists."`
}

func (c *FetchCmd) Run(g *Globals) error {
	st, db, err := g.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loader := g.loader(st)
	var bundle *models.Bundle
	if c.Force {
		bundle, err = loader.Refresh(ctx)
	} else {
		bundle, err = loader.Load(ctx)
	}
	if err != nil {
		return err
	}

	log.Printf("bundle ready: %d records, %d coverages, %d species",
		len(bundle.Records), len(bundle.Coverages), len(bundle.Species()))
	return nil
}

type MapCmd struct {
	renderFlags
	Out string `help:"Output PNG path." short:"o" default:"species-map.png"`
}

func (c *MapCmd) Run(g *Globals) error {
	fig, err := buildFigure(g, c.renderFlags)
	if err != nil {
		return err
	}
	data, err := fig.PNG()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", c.Out, err)
	}
	log.Printf("wrote %s", c.Out)
	return nil
}

type PublishCmd struct {
	renderFlags
	Endpoint string `help:"Figure upload endpoint." env:"SPECDIST_PUBLISH_URL" required:""`
	Name     string `help:"Published figure name." default:"species-map"`
}

func (c *PublishCmd) Run(g *Globals) error {
	fig, err := buildFigure(g, c.renderFlags)
	if err != nil {
		return err
	}
	data, err := fig.PNG()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	url, err := publish.New(c.Endpoint).Publish(ctx, c.Name, data)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

type ServeCmd struct {
	renderFlags
	Port string `help:"HTTP server port." default:"8080"`
}

func (c *ServeCmd) Run(g *Globals) error {
	st, db, err := g.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bundle, err := g.loader(st).Load(ctx)
	if err != nil {
		return err
	}
	bundle, err = c.applyRegion(bundle)
	if err != nil {
		return err
	}
	opts, err := c.options()
	if err != nil {
		return err
	}

	server := api.NewServer(st, bundle, opts, c.Port)
	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

// buildFigure runs the full pipeline once: load, filter, estimate, render.
func buildFigure(g *Globals, flags renderFlags) (*render.Figure, error) {
	st, db, err := g.openStore()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bundle, err := g.loader(st).Load(ctx)
	if err != nil {
		return nil, err
	}
	bundle, err = flags.applyRegion(bundle)
	if err != nil {
		return nil, err
	}
	opts, err := flags.options()
	if err != nil {
		return nil, err
	}

	result, err := mapper.Run(bundle, flags.labels(bundle), opts)
	if err != nil {
		return nil, err
	}

	panels := make([]render.Panel, len(result.Maps))
	for i, m := range result.Maps {
		log.Printf("estimated %s from %d records", m.Label, m.Training)
		panels[i] = render.Panel{Title: m.Label, Field: m.Field}
	}

	return render.Render(render.FigureSpec{
		Grid:     result.Grid,
		Coast:    result.Coast,
		Sentinel: result.Sentinel,
		Panels:   panels,
	})
}

var cli struct {
	Globals

	Fetch   FetchCmd   `cmd:"" help:"Fetch the dataset bundle into the local cache."`
	Map     MapCmd     `cmd:"" help:"Render species density maps to a PNG."`
	Publish PublishCmd `cmd:"" help:"Render and upload a figure, printing its embed URL."`
	Serve   ServeCmd   `cmd:"" help:"Serve rendered maps and dataset summaries over HTTP."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("specdist"),
		kong.Description("Species distribution density mapping from occurrence records."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		log.Fatalf("%s: %v", ctx.Command(), err)
	}
}
