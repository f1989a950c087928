// Command pcn counts passengers crossing the middle of one or more
// camera views and serves the counts over HTTP, gRPC and a serial
// display.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/passenger.counter/internal/api"
	"github.com/banshee-data/passenger.counter/internal/config"
	"github.com/banshee-data/passenger.counter/internal/db"
	"github.com/banshee-data/passenger.counter/internal/httputil"
	"github.com/banshee-data/passenger.counter/internal/replay"
	"github.com/banshee-data/passenger.counter/internal/serialmux"
	"github.com/banshee-data/passenger.counter/internal/stream"
	"github.com/banshee-data/passenger.counter/internal/version"
	"github.com/banshee-data/passenger.counter/internal/vision"
	"github.com/banshee-data/passenger.counter/internal/visualiser"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Tuning config JSON file")
	dbPath      = flag.String("db", "passenger_counts.db", "SQLite database path (empty disables history)")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "localhost:50051", "gRPC visualiser listen address (empty disables)")
	devMode     = flag.Bool("dev", false, "Replay detection fixtures instead of opening cameras")
	fixtures    = flag.String("fixtures", "", "Comma separated detection recordings (.jsonl) for -dev; defaults to the built-in fixture")
	loop        = flag.Bool("loop", false, "Restart -fixtures recordings when they end")
	display     = flag.String("display", "", "Preview windows to show: color,backsub,denoise")
	calibrate   = flag.Bool("calibrate", false, "Show calibration sliders on the color window")
	saveVideo   = flag.String("save-video", "", "Record the annotated stream as <stream>-color.avi in this directory")
	recordDir   = flag.String("record", "", "Write every stream's detections to <dir>/<stream>.jsonl for later replay")
	serialPort  = flag.String("serial", "", "Serial port of the passenger display (empty disables)")
	serialBaud  = flag.Int("serial-baud", 9600, "Serial display baud rate")
	server      = flag.String("server", "", "Server URL for the status and reset subcommands (defaults to -listen)")
	showVersion = flag.Bool("version", false, "Print version and exit")

	devices deviceList
)

func init() {
	flag.Var(&devices, "device", "Capture device as [name=]index|path|url; repeatable or comma separated")
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage: pcn [flags] [migrate|status|reset [stream]]\n\n")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(args, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

// runCommand handles the subcommands that do not start the counter.
func runCommand(args []string, out io.Writer) error {
	switch args[0] {
	case "migrate":
		if *dbPath == "" {
			return errors.New("migrate needs -db")
		}
		return db.RunMigrateCommand(args[1:], *dbPath, out)
	case "status":
		return printStatus(context.Background(), newClient(), out)
	case "reset":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		if err := newClient().Reset(context.Background(), name); err != nil {
			return err
		}
		if name == "" {
			name = "all streams"
		}
		fmt.Fprintf(out, "reset requested for %s\n", name)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newClient() *api.Client {
	base := *server
	if base == "" {
		base = *listen
	}
	return api.NewClient(serverURL(base), nil)
}

func printStatus(ctx context.Context, c *api.Client, out io.Writer) error {
	statuses, err := c.Streams(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(out, "no streams")
		return nil
	}
	for _, s := range statuses {
		fmt.Fprintf(out, "%-12s in=%-5d out=%-5d tracks=%-3d fps=%.1f running=%t\n",
			s.Name, s.Counters.In, s.Counters.Out, s.Tracks, s.FPS, s.Running)
	}
	return nil
}

func run(ctx context.Context) error {
	tuning, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || *configPath != config.DefaultConfigPath {
			return fmt.Errorf("load tuning config: %w", err)
		}
		log.Printf("no %s found, using built-in tuning defaults", *configPath)
		tuning = config.EmptyTuningConfig()
	}
	live := config.NewLive(tuning)

	displays, err := vision.ParseDisplays(*display)
	if err != nil {
		return err
	}

	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
	}

	setups, err := buildStreams(live, displays)
	if err != nil {
		return err
	}
	var recordings []io.Closer
	if *recordDir != "" {
		if recordings, err = recordStreams(*recordDir, setups); err != nil {
			closeSetups(setups)
			return err
		}
	}
	defer func() {
		for _, f := range recordings {
			f.Close()
		}
	}()

	manager := stream.NewManager()

	var sinks []stream.Sink
	if database != nil {
		sinks = append(sinks, stream.CrossingRecorder{Store: database})
	}

	var publisher *visualiser.Publisher
	if *grpcListen != "" {
		cfg := visualiser.DefaultConfig()
		cfg.ListenAddr = *grpcListen
		publisher = visualiser.NewPublisher(cfg)
		if err := publisher.Start(); err != nil {
			closeSetups(setups)
			return fmt.Errorf("start visualiser: %w", err)
		}
		defer publisher.Stop()
		sinks = append(sinks, publisher)
	}

	var serialDisplay *serialmux.Display
	var serialMux serialmux.SerialMuxInterface
	if *serialPort != "" {
		mux, err := serialmux.NewRealSerialMux(*serialPort, serialmux.PortOptions{BaudRate: *serialBaud})
		if err != nil {
			closeSetups(setups)
			return err
		}
		defer mux.Close()
		serialMux = mux
		serialDisplay = serialmux.NewDisplay(mux, manager)
		sinks = append(sinks, serialDisplay)
	}

	for _, s := range setups {
		cfg := stream.Config{
			Name:    s.name,
			Source:  s.source,
			Params:  live,
			Sinks:   append(append([]stream.Sink{}, s.sinks...), sinks...),
			SeedFPS: s.seedFPS,
		}
		if database != nil {
			cfg.Sessions = database
		}
		if err := manager.Add(stream.NewRunner(cfg)); err != nil {
			closeSetups(setups)
			return err
		}
	}

	var wg sync.WaitGroup

	if serialDisplay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serialMux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("serial monitor routine terminated")
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serialDisplay.Hello(); err != nil {
				log.Printf("failed to greet serial display: %v", err)
			}
			if err := serialDisplay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial display error: %v", err)
			}
			log.Print("serial display routine terminated")
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := manager.Run(ctx); err != nil {
			log.Printf("stream error: %v", err)
		}
		log.Print("all streams stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(manager, live, database).ServeMux()
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}
		if serialMux != nil {
			serialMux.AttachAdminRoutes(mux)
		}

		srv := &http.Server{
			Addr:    *listen,
			Handler: httputil.LoggingMiddleware(mux),
		}

		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("%s listening on %s", version.String(), *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}

// buildStreams opens the configured sources: fixtures in dev mode,
// capture devices otherwise.
func buildStreams(live *config.Live, displays vision.Displays) ([]streamSetup, error) {
	if *devMode {
		return devStreams(splitList(*fixtures), replay.Options{Paced: true, Loop: *loop})
	}
	if len(devices) == 0 {
		return nil, errors.New("no -device given (use -dev to replay fixtures)")
	}
	var setups []streamSetup
	for _, spec := range devices {
		s, err := openCameraStream(spec, live, displays, *calibrate, *saveVideo)
		if err != nil {
			closeSetups(setups)
			return nil, err
		}
		setups = append(setups, s)
	}
	return setups, nil
}
