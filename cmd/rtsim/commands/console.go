package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"rtcore-go/bus"
	"rtcore-go/types"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Boot the rig and open an interactive control prompt",
	Long: `Boots the configured device profile and reads control commands from
stdin. Lines are tokenized shell-style, so quoted arguments work:

  create "slow blink" noop period=500 prio=low

Type "help" at the prompt for the command list.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

var errQuit = errors.New("quit")

const consoleHelp = `commands:
  state                                  executive state
  tasks                                  task table
  create <name> <action> [k=v ...]       new task; options: period, prio, stack, sensor, proto
  delay <id> <ms>                        park a task
  read <sensor>                          sample a sensor
  filtered <sensor> <ma|ema> <window>    filtered reading
  history <sensor>                       raw history samples
  sensors                                latest retained readings
  power [mode]                           show or set the power mode
  modes                                  list power modes
  estimate <capacity_mah> [draw_ma]      battery life estimate
  plan <capacity_mah> <name:deadline_h:power_ma:duration_h> ...
  comm                                   protocol channel status
  add <proto> <kind>                     add a protocol channel
  send <proto> <text>                    queue outbound data
  recv <proto> [max]                     drain inbound data
  help                                   this text
  quit                                   leave the console`

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := startRig(ctx)
	if err != nil {
		return err
	}
	c := &console{ctx: ctx, conn: conn}

	cyan.Printf("rig %q up; \"help\" lists commands\n", flagDevice)

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			fmt.Println()
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		tokens, err := shlex.Split(in.Text())
		if err != nil {
			red.Printf("parse: %v\n", err)
			continue
		}
		if len(tokens) == 0 {
			continue
		}
		switch err := c.dispatch(tokens); {
		case err == errQuit:
			return nil
		case err != nil:
			red.Println(err.Error())
		}
	}
}

type console struct {
	ctx  context.Context
	conn *bus.Connection
}

func (c *console) dispatch(args []string) error {
	switch args[0] {
	case "help":
		fmt.Println(consoleHelp)
		return nil
	case "quit", "exit":
		return errQuit
	case "state":
		return c.showState()
	case "tasks":
		return c.showTasks()
	case "create":
		return c.createTask(args)
	case "delay":
		return c.delayTask(args)
	case "read":
		return c.readSensor(args)
	case "filtered":
		return c.filteredSensor(args)
	case "history":
		return c.sensorHistory(args)
	case "sensors":
		return c.showSensors()
	case "power":
		return c.power(args)
	case "modes":
		return c.powerModes()
	case "estimate":
		return c.estimate(args)
	case "plan":
		return c.plan(args)
	case "comm":
		return c.commStatus()
	case "add":
		return c.addProto(args)
	case "send":
		return c.sendData(args)
	case "recv":
		return c.recvData(args)
	default:
		return fmt.Errorf("unknown command %q (try \"help\")", args[0])
	}
}

// -----------------------------------------------------------------------------
// Request plumbing
// -----------------------------------------------------------------------------

func (c *console) request(topic bus.Topic, payload any) (any, error) {
	ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	defer cancel()
	reply, err := c.conn.RequestWait(ctx, c.conn.NewMessage(topic, payload, false))
	if err != nil {
		return nil, err
	}
	if er, ok := reply.Payload.(types.ErrorReply); ok {
		return nil, errors.New(er.Error)
	}
	return reply.Payload, nil
}

// retained collects the current retained messages under a pattern, keeping
// only the latest per topic.
func (c *console) retained(pattern bus.Topic, wait time.Duration) map[string]*bus.Message {
	sub := c.conn.Subscribe(pattern)
	defer c.conn.Unsubscribe(sub)

	out := map[string]*bus.Message{}
	deadline := time.After(wait)
	for {
		select {
		case m := <-sub.Channel():
			path := ""
			for i := 0; i < m.Topic.Len(); i++ {
				if i > 0 {
					path += "/"
				}
				path += fmt.Sprint(m.Topic.At(i))
			}
			out[path] = m
		case <-deadline:
			return out
		}
	}
}

// -----------------------------------------------------------------------------
// Command bodies
// -----------------------------------------------------------------------------

func (c *console) showState() error {
	for _, m := range c.retained(bus.T("exec", "state"), 50*time.Millisecond) {
		if st, ok := m.Payload.(types.ServiceState); ok {
			fmt.Printf("%s (%s)", st.Level, st.Status)
			if st.Error != "" {
				fmt.Printf(" err=%s", st.Error)
			}
			fmt.Println()
			return nil
		}
	}
	return errors.New("no executive state yet")
}

func (c *console) showTasks() error {
	p, err := c.request(bus.T("exec", "task", "control", "list"), nil)
	if err != nil {
		return err
	}
	table, ok := p.(types.TaskTable)
	if !ok {
		return fmt.Errorf("unexpected reply %T", p)
	}
	cyan.Printf("%-4s %-16s %-9s %-8s %6s %8s %7s\n",
		"ID", "NAME", "PRIORITY", "STATE", "WAIT", "RUNS", "STACK")
	for _, r := range table.Tasks {
		fmt.Printf("%-4d %-16s %-9s %-8s %6d %8d %7d\n",
			r.ID, r.Name, r.Priority, r.State, r.WaitTicks, r.Runs, r.StackSize)
	}
	fmt.Printf("ticks=%d current=%d\n", table.Ticks, table.Current)
	return nil
}

func (c *console) createTask(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: create <name> <action> [period=ms] [prio=level] [stack=bytes] [sensor=name] [proto=name]")
	}
	spec := types.TaskSpec{Name: args[1], Action: args[2]}
	for _, kv := range args[3:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("option %q is not key=value", kv)
		}
		switch k {
		case "period":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("bad period %q", v)
			}
			spec.PeriodMs = uint32(n)
		case "prio", "priority":
			spec.Priority = v
		case "stack":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("bad stack %q", v)
			}
			spec.StackSize = n
		case "sensor":
			spec.Sensor = v
		case "proto", "protocol":
			spec.Protocol = v
		default:
			return fmt.Errorf("unknown option %q", k)
		}
	}
	p, err := c.request(bus.T("exec", "task", "control", "create"), spec)
	if err != nil {
		return err
	}
	if row, ok := p.(types.TaskRow); ok {
		green.Printf("created task %d (%s, %s)\n", row.ID, row.Name, row.Priority)
	}
	return nil
}

func (c *console) delayTask(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: delay <id> <ms>")
	}
	id, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad id %q", args[1])
	}
	ms, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return fmt.Errorf("bad ms %q", args[2])
	}
	if _, err := c.request(bus.T("exec", "task", "control", "delay"),
		types.TaskDelay{ID: id, Ms: uint32(ms)}); err != nil {
		return err
	}
	green.Printf("task %d parked for %dms\n", id, ms)
	return nil
}

func (c *console) readSensor(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: read <sensor>")
	}
	p, err := c.request(bus.T("exec", "sensor", "control", "read"),
		types.SensorRead{Name: args[1]})
	if err != nil {
		return err
	}
	if rv, ok := p.(types.ReadingValue); ok {
		fmt.Printf("%s = %g\n", rv.Name, rv.Value)
	}
	return nil
}

func (c *console) filteredSensor(args []string) error {
	if len(args) != 4 {
		return errors.New("usage: filtered <sensor> <ma|ema> <window>")
	}
	window, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("bad window %q", args[3])
	}
	p, err := c.request(bus.T("exec", "sensor", "control", "filtered"),
		types.SensorFiltered{Name: args[1], Filter: args[2], Window: window})
	if err != nil {
		return err
	}
	if rv, ok := p.(types.ReadingValue); ok {
		fmt.Printf("%s %s(%d) = %g\n", rv.Name, args[2], window, rv.Value)
	}
	return nil
}

func (c *console) sensorHistory(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: history <sensor>")
	}
	p, err := c.request(bus.T("exec", "sensor", "control", "history"),
		types.SensorRead{Name: args[1]})
	if err != nil {
		return err
	}
	vs, ok := p.([]float64)
	if !ok {
		return fmt.Errorf("unexpected reply %T", p)
	}
	if len(vs) == 0 {
		fmt.Println("(no samples)")
		return nil
	}
	for i, v := range vs {
		fmt.Printf("%3d: %g\n", i, v)
	}
	return nil
}

func (c *console) showSensors() error {
	got := c.retained(bus.T("exec", "sensor", "+", "value"), 50*time.Millisecond)
	if len(got) == 0 {
		fmt.Println("(no readings yet)")
		return nil
	}
	for _, m := range got {
		if rv, ok := m.Payload.(types.ReadingValue); ok {
			fmt.Printf("%-12s %10g  ts=%d\n", rv.Name, rv.Value, rv.TS)
		}
	}
	return nil
}

func (c *console) power(args []string) error {
	if len(args) == 1 {
		for _, m := range c.retained(bus.T("exec", "power", "state"), 50*time.Millisecond) {
			if st, ok := m.Payload.(types.PowerState); ok {
				fmt.Printf("%s draw=%gmA wake=%dus\n", st.Mode, st.DrawMA, st.WakeLatencyUS)
				return nil
			}
		}
		return errors.New("no power state yet")
	}
	p, err := c.request(bus.T("exec", "power", "control", "mode"),
		types.PowerSet{Mode: args[1]})
	if err != nil {
		return err
	}
	if st, ok := p.(types.PowerState); ok {
		green.Printf("%s draw=%gmA wake=%dus\n", st.Mode, st.DrawMA, st.WakeLatencyUS)
	}
	return nil
}

func (c *console) powerModes() error {
	p, err := c.request(bus.T("exec", "power", "control", "modes"), nil)
	if err != nil {
		return err
	}
	if modes, ok := p.([]string); ok {
		fmt.Println(strings.Join(modes, " "))
	}
	return nil
}

func (c *console) estimate(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: estimate <capacity_mah> [draw_ma]")
	}
	capacity, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("bad capacity %q", args[1])
	}
	req := types.BatteryEstimate{CapacityMAh: capacity}
	if len(args) == 3 {
		draw, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("bad draw %q", args[2])
		}
		req.DrawMA = &draw
	}
	p, err := c.request(bus.T("exec", "power", "control", "estimate"), req)
	if err != nil {
		return err
	}
	if bl, ok := p.(types.BatteryLife); ok {
		fmt.Printf("%.1f hours (%.1f days)\n", bl.Hours, bl.Hours/24)
	}
	return nil
}

func (c *console) plan(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: plan <capacity_mah> <name:deadline_h:power_ma:duration_h> ...")
	}
	capacity, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("bad capacity %q", args[1])
	}
	req := types.PlanRequest{CapacityMAh: capacity}
	for _, entry := range args[2:] {
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return fmt.Errorf("entry %q is not name:deadline_h:power_ma:duration_h", entry)
		}
		deadline, err1 := strconv.ParseFloat(parts[1], 64)
		power, err2 := strconv.ParseFloat(parts[2], 64)
		duration, err3 := strconv.ParseFloat(parts[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return fmt.Errorf("bad numbers in %q", entry)
		}
		req.Tasks = append(req.Tasks, types.PlanItem{
			Name:          parts[0],
			DeadlineHours: deadline,
			PowerMA:       power,
			DurationHours: duration,
		})
	}
	p, err := c.request(bus.T("exec", "power", "control", "optimize"), req)
	if err != nil {
		return err
	}
	plan, ok := p.(types.PlanReply)
	if !ok {
		return fmt.Errorf("unexpected reply %T", p)
	}
	if len(plan.Accepted) == 0 {
		yellow.Println("nothing fits the budget")
		return nil
	}
	for _, t := range plan.Accepted {
		fmt.Printf("%-16s deadline=%gh draw=%gmA for %gh\n",
			t.Name, t.DeadlineHours, t.PowerMA, t.DurationHours)
	}
	return nil
}

func (c *console) commStatus() error {
	p, err := c.request(bus.T("exec", "comm", "control", "status"), nil)
	if err != nil {
		return err
	}
	statuses, ok := p.([]types.CommStatus)
	if !ok {
		return fmt.Errorf("unexpected reply %T", p)
	}
	cyan.Printf("%-10s %-8s %-13s %4s %4s\n", "NAME", "KIND", "STATUS", "TX", "RX")
	for _, cs := range statuses {
		fmt.Printf("%-10s %-8s %-13s %4d %4d\n", cs.Name, cs.Kind, cs.Status, cs.TXDepth, cs.RXDepth)
	}
	return nil
}

func (c *console) addProto(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: add <proto> <kind>")
	}
	if _, err := c.request(bus.T("exec", "comm", "control", "add"),
		types.ProtocolSpec{Name: args[1], Kind: args[2]}); err != nil {
		return err
	}
	green.Printf("protocol %s (%s) added\n", args[1], args[2])
	return nil
}

func (c *console) sendData(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: send <proto> <text>")
	}
	data := strings.Join(args[2:], " ")
	if _, err := c.request(bus.T("exec", "comm", "control", "send"),
		types.CommSend{Protocol: args[1], Data: []byte(data)}); err != nil {
		return err
	}
	green.Printf("%d bytes queued on %s\n", len(data), args[1])
	return nil
}

func (c *console) recvData(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: recv <proto> [max]")
	}
	req := types.CommReceive{Protocol: args[1]}
	if len(args) == 3 {
		max, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("bad max %q", args[2])
		}
		req.Max = max
	}
	p, err := c.request(bus.T("exec", "comm", "control", "receive"), req)
	if err != nil {
		return err
	}
	cd, ok := p.(types.CommData)
	if !ok {
		return fmt.Errorf("unexpected reply %T", p)
	}
	if len(cd.Data) == 0 {
		fmt.Println("(empty)")
		return nil
	}
	fmt.Printf("%q\n", cd.Data)
	return nil
}
