package exec

import (
	"time"

	"rtcore-go/bus"
	"rtcore-go/comms"
	"rtcore-go/errcode"
	"rtcore-go/kernel"
	"rtcore-go/power"
	"rtcore-go/sensors"
	"rtcore-go/types"
	"rtcore-go/x/timex"
)

// -----------------------------------------------------------------------------
// Control dispatch
// -----------------------------------------------------------------------------

// handleControl answers exec/<area>/control/<verb> requests. Every request
// that carries a reply topic gets exactly one reply, an OKReply, a typed
// result, or an ErrorReply with a stable code.
func (s *service) handleControl(msg *bus.Message) {
	if msg.Topic.Len() < 4 {
		return
	}
	area, _ := msg.Topic.At(1).(string)
	verb, _ := msg.Topic.At(3).(string)
	if !s.ready {
		s.replyErr(msg, errcode.ExecNotReady)
		return
	}
	switch area {
	case "task":
		s.taskControl(msg, verb)
	case "sensor":
		s.sensorControl(msg, verb)
	case "power":
		s.powerControl(msg, verb)
	case "comm":
		s.commControl(msg, verb)
	default:
		s.replyErr(msg, errcode.InvalidTopic)
	}
}

// -----------------------------------------------------------------------------
// Task area
// -----------------------------------------------------------------------------

func (s *service) taskControl(msg *bus.Message, verb string) {
	switch verb {
	case "create":
		var spec types.TaskSpec
		if err := decodeJSON(msg.Payload, &spec); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		id, err := s.createTaskOn(s.kern, spec)
		if err != nil {
			s.replyErr(msg, errcode.Of(err))
			return
		}
		info, _ := s.kern.Info(id)
		s.reply(msg, taskRow(info))

	case "delay":
		var req types.TaskDelay
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if err := s.kern.Delay(kernel.TaskID(req.ID), time.Duration(req.Ms)*time.Millisecond); err != nil {
			s.replyErr(msg, errcode.Of(err))
			return
		}
		s.replyOK(msg)

	case "list":
		s.reply(msg, s.taskTable())

	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

// -----------------------------------------------------------------------------
// Sensor area
// -----------------------------------------------------------------------------

func (s *service) sensorControl(msg *bus.Message, verb string) {
	switch verb {
	case "register":
		var spec types.SensorSpec
		if err := decodeJSON(msg.Payload, &spec); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if err := s.reg.Register(spec.Name, spec.SampleHz, spec.ResolutionBits); err != nil {
			s.replyErr(msg, errcode.Of(err))
			return
		}
		s.replyOK(msg)

	case "read":
		var req types.SensorRead
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		v, err := s.reg.Read(req.Name)
		if err != nil {
			s.replyErr(msg, errcode.MapSourceErr(err))
			return
		}
		s.pubReading(req.Name, v)
		info, _ := s.reg.Info(req.Name)
		s.reply(msg, types.ReadingValue{Name: req.Name, Value: v, TS: info.LastSampleMs})

	case "filtered":
		var req types.SensorFiltered
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		kind, ok := sensors.ParseFilter(req.Filter)
		if !ok {
			s.replyErr(msg, errcode.InvalidParams)
			return
		}
		v, err := s.reg.Filtered(req.Name, kind, req.Window)
		if err != nil {
			s.replyErr(msg, errcode.MapSourceErr(err))
			return
		}
		s.reply(msg, types.ReadingValue{Name: req.Name, Value: v, TS: timex.NowMs()})

	case "history":
		var req types.SensorRead
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		vs, err := s.reg.History(req.Name, nil)
		if err != nil {
			s.replyErr(msg, errcode.Of(err))
			return
		}
		s.reply(msg, vs)

	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

// -----------------------------------------------------------------------------
// Power area
// -----------------------------------------------------------------------------

func (s *service) powerControl(msg *bus.Message, verb string) {
	switch verb {
	case "mode":
		var req types.PowerSet
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if err := s.pwr.EnterMode(power.Mode(req.Mode)); err != nil {
			s.replyErr(msg, errcode.Of(err))
			return
		}
		st := s.powerState(timex.NowMs())
		s.pubRet(bus.T("exec", "power", "state"), st)
		s.reply(msg, st)

	case "estimate":
		var req types.BatteryEstimate
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		var hours float64
		var err error
		if req.DrawMA != nil {
			hours, err = s.pwr.EstimateBatteryLife(req.CapacityMAh, *req.DrawMA)
		} else {
			hours, err = s.pwr.EstimateBatteryLife(req.CapacityMAh)
		}
		if err != nil {
			s.replyErr(msg, errcode.Of(err))
			return
		}
		s.reply(msg, types.BatteryLife{Hours: hours})

	case "optimize":
		var req types.PlanRequest
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		plan := make([]power.TaskPlan, 0, len(req.Tasks))
		for _, t := range req.Tasks {
			plan = append(plan, power.TaskPlan{
				Name:          t.Name,
				DeadlineHours: t.DeadlineHours,
				PowerMA:       t.PowerMA,
				DurationHours: t.DurationHours,
			})
		}
		accepted := power.OptimizeSchedule(plan, req.CapacityMAh)
		out := types.PlanReply{Accepted: make([]types.PlanItem, 0, len(accepted))}
		for _, t := range accepted {
			out.Accepted = append(out.Accepted, types.PlanItem{
				Name:          t.Name,
				DeadlineHours: t.DeadlineHours,
				PowerMA:       t.PowerMA,
				DurationHours: t.DurationHours,
			})
		}
		s.reply(msg, out)

	case "modes":
		modes := power.Modes()
		out := make([]string, 0, len(modes))
		for _, m := range modes {
			out = append(out, string(m))
		}
		s.reply(msg, out)

	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

// -----------------------------------------------------------------------------
// Comm area
// -----------------------------------------------------------------------------

func (s *service) commControl(msg *bus.Message, verb string) {
	switch verb {
	case "add":
		var spec types.ProtocolSpec
		if err := decodeJSON(msg.Payload, &spec); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if spec.Name == "" {
			s.replyErr(msg, errcode.InvalidParams)
			return
		}
		s.stack.AddProtocol(spec.Name, spec.Kind)
		s.replyOK(msg)

	case "send":
		var req types.CommSend
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if !s.stack.Send(req.Protocol, req.Data) {
			s.replyErr(msg, errcode.UnknownProtocol)
			return
		}
		s.replyOK(msg)

	case "receive":
		var req types.CommReceive
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if _, ok := s.stack.Status(req.Protocol); !ok {
			s.replyErr(msg, errcode.UnknownProtocol)
			return
		}
		max := req.Max
		if max <= 0 {
			max = comms.MaxPayload
		}
		data, _ := s.stack.Receive(req.Protocol, max)
		s.reply(msg, types.CommData{Protocol: req.Protocol, Data: data})

	case "status":
		now := timex.NowMs()
		out := make([]types.CommStatus, 0, s.stack.Len())
		for _, name := range s.stack.Protocols() {
			if info, ok := s.stack.Info(name); ok {
				out = append(out, commStatus(info, now))
			}
		}
		s.reply(msg, out)

	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

// -----------------------------------------------------------------------------
// Reply helpers
// -----------------------------------------------------------------------------

func (s *service) reply(req *bus.Message, payload any) {
	if !req.CanReply() {
		return
	}
	s.conn.Reply(req, payload, false)
}

func (s *service) replyOK(req *bus.Message) {
	s.reply(req, types.OKReply{OK: true})
}

func (s *service) replyErr(req *bus.Message, code errcode.Code) {
	if code == "" {
		code = errcode.Error
	}
	s.reply(req, types.ErrorReply{OK: false, Error: string(code)})
}

func taskRow(info kernel.TaskInfo) types.TaskRow {
	return types.TaskRow{
		ID:        int(info.ID),
		Name:      info.Name,
		Priority:  info.Priority.String(),
		State:     info.State.String(),
		WaitTicks: info.WaitTicks,
		Runs:      info.Runs,
		StackSize: info.StackSize,
	}
}

func commStatus(info comms.ProtocolInfo, now int64) types.CommStatus {
	return types.CommStatus{
		Name:    info.Name,
		Kind:    info.Kind,
		Status:  info.Status.String(),
		TXDepth: info.TXDepth,
		RXDepth: info.RXDepth,
		TS:      now,
	}
}
