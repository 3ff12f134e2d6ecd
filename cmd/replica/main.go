package main

import (
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HimbeerserverDE/replica"
	"github.com/urfave/cli/v2"
)

const tickInterval = 50 * time.Millisecond

// Pos is the demo transfer type: a 2D position.
type Pos struct {
	X, Y float64
}

func (Pos) TransferName() string { return "pos" }

func (p *Pos) EncodeTransfer(w io.Writer) error {
	if err := replica.WriteFloat64(w, p.X); err != nil {
		return err
	}
	return replica.WriteFloat64(w, p.Y)
}

func (p *Pos) DecodeTransfer(r io.Reader) error {
	var err error
	if p.X, err = replica.ReadFloat64(r); err != nil {
		return err
	}
	p.Y, err = replica.ReadFloat64(r)
	return err
}

// marker is a demo entity that just remembers its latest position.
type marker struct {
	id  uint64
	pos Pos
}

func (m *marker) UniqueID() uint64 { return m.id }

func (m *marker) TransferState() replica.Transfer {
	p := m.pos
	return &p
}

func (m *marker) ApplyState(state replica.Transfer, sentTime float64, reckon bool) {
	if p, ok := state.(*Pos); ok {
		m.pos = *p
	}
}

// logArena prints the entity lifecycle instead of simulating anything.
type logArena struct{}

func (logArena) CreateEntity(id uint64, state replica.Transfer) (replica.Entity, error) {
	m := &marker{id: id}
	m.ApplyState(state, 0, true)

	log.Printf("entity %#x created by client %d", id, replica.UnpackClientID(id))
	return m, nil
}

func (logArena) DestroyEntity(e replica.Entity) {
	log.Printf("entity %#x destroyed", e.UniqueID())
}

func (logArena) GenericMessage(id uint64, state replica.Transfer, sentTime float64) {
	log.Printf("generic message %d at %.3f", id, sentTime)
}

func transfers() *replica.Transfers {
	ts, err := replica.NewTransfers(
		func() replica.Transfer { return &Pos{} },
	)
	if err != nil {
		log.Fatal(err)
	}
	return ts
}

func handlers() replica.Handlers {
	return replica.Handlers{
		Connected: func(id byte) {
			log.Printf("joined as client %d", id)
		},
		Disconnected: func(id byte) {
			log.Printf("client %d gone", id)
		},
		ClientConnected: func(id byte) {
			log.Printf("approved client %d", id)
		},
	}
}

func loadConfig(ctx *cli.Context) (*replica.Config, error) {
	if path := ctx.String("config"); path != "" {
		return replica.LoadConfig(path)
	}

	cfg := replica.DefaultConfig()
	if addr := ctx.String("address"); addr != "" {
		cfg.Address = addr
	}
	return cfg, nil
}

// run drives eng at a fixed rate until SIGINT or SIGTERM.
func run(eng replica.Engine, frame func(tick uint64)) error {
	defer eng.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-sig:
			log.Print("shutting down")
			return nil
		case <-ticker.C:
			if err := eng.Update(); err != nil {
				return err
			}
			if frame != nil {
				frame(tick)
			}
			tick++
		}
	}
}

func serve(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	eng, err := replica.NewAuthority(cfg, transfers(), logArena{}, handlers())
	if err != nil {
		return err
	}

	return run(eng, nil)
}

func join(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	eng, err := replica.Dial(cfg, transfers(), logArena{}, handlers())
	if err != nil {
		return err
	}

	// Request one wandering marker and stream updates for it.
	id, err := eng.RequestCreate(&Pos{})
	if err != nil {
		return err
	}

	pos := Pos{}
	return run(eng, func(tick uint64) {
		pos.X += rand.Float64() - 0.5
		pos.Y += rand.Float64() - 0.5

		if tick%4 == 0 {
			if err := eng.RequestUpdate(id, &pos); err != nil {
				log.Print(err)
			}
		}
	})
}

func main() {
	if l, err := replica.StartLog(""); err == nil {
		defer l.Close()
	}

	app := &cli.App{
		Name:  "replica",
		Usage: "replicated entity state demo",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "yaml configuration file"},
			&cli.StringFlag{Name: "address", Usage: "listen or remote address"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the session authority",
				Action: serve,
			},
			{
				Name:   "join",
				Usage:  "join a running session",
				Action: join,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
