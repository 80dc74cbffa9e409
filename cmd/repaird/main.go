// Command repaird runs the repair protocol engine as a standalone process,
// wiring together UDP intake/serve sockets, an on-disk identity, and the
// core engine. Subcommands are parsed with cobra/pflag, the root command
// holding a single "run" subcommand.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"repair-engine/core"
	pkgconfig "repair-engine/pkg/config"
	"repair-engine/pkg/utils"
)

func main() {
	rootCmd := &cobra.Command{Use: "repaird"}
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the repair protocol engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(env)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment overlay config to merge (e.g. bootstrap)")
	return cmd
}

func runEngine(env string) error {
	cfg, err := pkgconfig.Load(env)
	if err != nil {
		return utils.Wrap(err, "load config")
	}

	blob, err := os.ReadFile(cfg.Repair.IdentityKeyPath)
	if err != nil {
		return utils.Wrap(err, "read identity key")
	}
	identity, err := core.LoadIdentity(blob)
	if err != nil {
		return utils.Wrap(err, "load identity")
	}

	intakeConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.Repair.IntakeListenPort})
	if err != nil {
		return utils.Wrap(err, "listen intake")
	}
	defer intakeConn.Close()
	serveConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.Repair.ServeListenPort})
	if err != nil {
		return utils.Wrap(err, "listen serve")
	}
	defer serveConn.Close()

	sender := &udpSender{intake: intakeConn, serve: serveConn}
	store := newMemoryBlockStore()
	sink := &loggingShredSink{store: store}
	forceSink := &loggingForceCompleteSink{}

	eng := core.NewEngine(
		core.SystemClock{},
		core.EngineConfig{
			ShredTileCnt:        uint32(cfg.Repair.ShredTileCnt),
			GoodPeerCacheFile:   cfg.Repair.GoodPeerCacheFile,
			MaxPendingShredSets: cfg.Repair.MaxPendingShredSets + 2,
		},
		identity, sender, store, sink, forceSink, nil,
	)

	if err := eng.LoadGoodPeerCache(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: good-peer cache load failed: %v\n", err)
	}

	go serveLoop(serveConn, eng)
	go intakeLoop(intakeConn, eng)

	ticker := time.NewTicker(core.SendBatchInterval)
	defer ticker.Stop()
	for range ticker.C {
		eng.Tick()
	}
	return nil
}

func serveLoop(conn *net.UDPConn, eng *core.Engine) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		eng.HandleServeDatagram(endpointFromUDPAddr(addr), append([]byte(nil), buf[:n]...))
	}
}

func intakeLoop(conn *net.UDPConn, eng *core.Engine) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		eng.HandleIntakeDatagram(endpointFromUDPAddr(addr), append([]byte(nil), buf[:n]...))
	}
}

func endpointFromUDPAddr(addr *net.UDPAddr) core.Endpoint {
	var ep core.Endpoint
	ip4 := addr.IP.To4()
	if ip4 != nil {
		copy(ep.IP[:], ip4)
	}
	ep.Port = uint16(addr.Port)
	return ep
}

// udpSender implements core.NetSender over two long-lived UDP sockets.
type udpSender struct {
	intake *net.UDPConn
	serve  *net.UDPConn
}

func (s *udpSender) SendIntake(dst core.Endpoint, payload []byte) error {
	_, err := s.intake.WriteToUDP(payload, endpointToUDPAddr(dst))
	return err
}

func (s *udpSender) SendServe(dst core.Endpoint, payload []byte) error {
	_, err := s.serve.WriteToUDP(payload, endpointToUDPAddr(dst))
	return err
}

func endpointToUDPAddr(ep core.Endpoint) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IP(ep.IP[:]), Port: int(ep.Port)}
}
