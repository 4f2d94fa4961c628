package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/kilianp07/agvkernel/infra/logger"
	"github.com/kilianp07/agvkernel/infra/mqtt"
	"github.com/kilianp07/agvkernel/infra/persistence"
	"github.com/kilianp07/agvkernel/simulator"
)

var (
	simVehicles []string
	simSeed     int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated vehicles against the MQTT broker",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringSliceVar(&simVehicles, "vehicles", nil, "vehicle names to simulate (default: the model's vehicles)")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "random seed for dropped acknowledgments (0 uses the clock)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()
	log := logger.New("simulator")

	names := simVehicles
	if len(names) == 0 && cfg.ModelFile != "" {
		m, err := persistence.ReadModelFile(cfg.ModelFile)
		if err != nil {
			return err
		}
		for _, v := range m.Vehicles {
			names = append(names, v.Name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no vehicles to simulate: pass --vehicles or set model_file")
	}

	mqttCfg := cfg.MQTT
	mqttCfg.SetDefaults()
	mqttCfg.ClientID = fmt.Sprintf("%s-sim-%d", mqttCfg.ClientID, time.Now().UnixNano())
	if err := mqttCfg.Validate(); err != nil {
		return err
	}
	opts, err := mqtt.NewClientOptions(mqttCfg)
	if err != nil {
		return err
	}
	cli := paho.NewClient(opts)
	tok := cli.Connect()
	if !tok.WaitTimeout(mqttCfg.ConnectTimeout) {
		return fmt.Errorf("connect %s: timed out after %s", mqttCfg.Broker, mqttCfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", mqttCfg.Broker, err)
	}
	defer cli.Disconnect(250)

	var strat simulator.AckStrategy
	if cfg.Simulator.DropRate > 0 {
		seed := simSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		strat = simulator.NewRandomAck(cfg.Simulator.AckDelay, cfg.Simulator.DropRate, seed)
	}
	fleet, err := simulator.NewMQTTFleet(cli, mqttCfg.TopicPrefix, names, cfg.Simulator, strat, log)
	if err != nil {
		return err
	}
	return fleet.Run(ctx)
}
