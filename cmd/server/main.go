package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"crowd-sim/internal/api"
	"crowd-sim/internal/config"
	"crowd-sim/internal/game"
	"crowd-sim/internal/game/spatial"
	"crowd-sim/internal/render"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  CROWD SIM - COLLISION SERVER")
	log.Println("🎮 ================================")

	appConfig := config.Load()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	simCfg := appConfig.Sim
	worldCfg := appConfig.World
	serverCfg := appConfig.Server

	plane, _ := spatial.ParsePlane(simCfg.Plane) // checked by Validate

	world, err := game.NewWorld(game.WorldConfig{
		CellSize:            float32(simCfg.CellSize),
		InitialGridCapacity: simCfg.GridCapacity,
		Plane:               plane,
		Workers:             simCfg.Workers,
		ParallelThreshold:   simCfg.ParallelThreshold,
	})
	if err != nil {
		log.Fatalf("❌ Failed to create world: %v", err)
	}

	engine := game.NewEngine(world, game.EngineConfig{
		TickRate:    simCfg.TickRate,
		MaxBodies:   serverCfg.MaxBodies,
		WorldWidth:  float32(worldCfg.Width),
		WorldHeight: float32(worldCfg.Height),
	})
	log.Printf("🎮 Config: %d TPS, cell %.2f on %s, %d workers, max %d bodies",
		simCfg.TickRate, simCfg.CellSize, plane, world.Workers(), serverCfg.MaxBodies)

	if serverCfg.EventLogPath != "" {
		if err := engine.StartEventLog(serverCfg.EventLogPath); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		} else {
			log.Printf("📝 Event log: %s", serverCfg.EventLogPath)
		}
	}

	if serverCfg.ScenarioPath != "" {
		if err := loadScenario(engine, serverCfg.ScenarioPath); err != nil {
			log.Printf("⚠️ Scenario not loaded: %v", err)
		}
	}

	if err := api.StartDebugServer(api.ObservabilityFromEnv()); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	renderer, err := render.NewRenderer(render.FrameConfig{
		WorldWidth:  worldCfg.Width,
		WorldHeight: worldCfg.Height,
		Scale:       worldCfg.RenderScale,
		CellSize:    simCfg.CellSize,
		Plane:       plane,
	})
	if err != nil {
		log.Printf("⚠️ Frame renderer disabled: %v", err)
	}

	var server *api.Server
	if renderer != nil {
		server = api.NewServer(engine, renderer)
	} else {
		server = api.NewServer(engine, nil)
	}

	engine.SetOnStep(api.RecordStep)
	engine.Start()

	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Printf("🌐 API server on http://localhost%s", addr)
		log.Printf("🖼️ Frame: http://localhost%s/api/frame.png", addr)

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	engine.Stop()
	world.Close()
	engine.StopEventLog()
	log.Println("👋 Goodbye!")
}

// loadScenario registers a scenario's bodies before the loop starts
func loadScenario(engine *game.Engine, path string) error {
	sc, err := config.LoadScenario(path)
	if err != nil {
		return err
	}
	opts, err := sc.BodyOptions()
	if err != nil {
		return err
	}
	if cs := engine.WorldConfig().CellSize; float32(sc.CellSize) != cs {
		log.Printf("💡 Scenario cell size %.2f ignored, world uses %.2f", sc.CellSize, cs)
	}
	for _, o := range opts {
		if _, err := engine.AddBody(o); err != nil {
			return err
		}
	}
	log.Printf("📦 Scenario %q: %d bodies", sc.Name, len(opts))
	return nil
}
