package console

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"wcnotice/internal/schedule"
	logx "wcnotice/pkg/logx"
)

// command is one line command. Handlers reply with text; errors are shown
// as "error: ..." and leave the configuration untouched.
type command struct {
	name    string
	aliases []string
	usage   string
	desc    string
	minArgs int
	handle  func(c *Console, args []string) (string, error)
}

var commands []command

var commandIndex = map[string]*command{}

func init() {
	commands = []command{
		{name: "help", aliases: []string{"?"}, desc: "list commands", handle: (*Console).cmdHelp},
		{name: "status", desc: "engine state and current period", handle: (*Console).cmdStatus},
		{name: "next", desc: "next period to fire", handle: (*Console).cmdNext},
		{name: "list", aliases: []string{"ls"}, desc: "periods of the active profile", handle: (*Console).cmdList},
		{name: "pause", desc: "stop firing", handle: func(c *Console, _ []string) (string, error) {
			c.engine.SetEnabled(false)
			return "paused", nil
		}},
		{name: "resume", desc: "start firing", handle: func(c *Console, _ []string) (string, error) {
			c.engine.SetEnabled(true)
			return "running", nil
		}},
		{name: "toggle", desc: "pause or resume", handle: func(c *Console, _ []string) (string, error) {
			if c.engine.ToggleEnabled() {
				return "running", nil
			}
			return "paused", nil
		}},
		{name: "add", usage: "HH:MM[:SS] start|end NAME", desc: "add a period", minArgs: 3, handle: (*Console).cmdAdd},
		{name: "time", usage: "N HH:MM[:SS]", desc: "change a period's time", minArgs: 2, handle: (*Console).cmdTime},
		{name: "name", usage: "N NAME", desc: "rename a period", minArgs: 2, handle: (*Console).cmdName},
		{name: "rm", usage: "N", desc: "remove a period", minArgs: 1, handle: (*Console).cmdRemove},
		{name: "enable", usage: "N", desc: "enable a period", minArgs: 1, handle: func(c *Console, a []string) (string, error) {
			return c.setEnabled(a[0], true)
		}},
		{name: "disable", usage: "N", desc: "disable a period", minArgs: 1, handle: func(c *Console, a []string) (string, error) {
			return c.setEnabled(a[0], false)
		}},
		{name: "rename", usage: "NAME", desc: "rename the active profile", minArgs: 1, handle: (*Console).cmdRename},
		{name: "profiles", desc: "list profiles", handle: (*Console).cmdProfiles},
		{name: "use", usage: "ID", desc: "activate a profile", minArgs: 1, handle: (*Console).cmdUse},
		{name: "new", usage: "NAME", desc: "create an empty profile and activate it", minArgs: 1, handle: (*Console).cmdNew},
		{name: "drop", desc: "delete the active profile", handle: (*Console).cmdDrop},
		{name: "sound", usage: "start|end builtin NAME | start|end local PATH", desc: "set a sound", minArgs: 3, handle: (*Console).cmdSound},
		{name: "history", usage: "[N]", desc: "recent triggers", handle: (*Console).cmdHistory},
		{name: "health", desc: "background workers", handle: (*Console).cmdHealth},
		{name: "hide", desc: "hide to tray", handle: func(c *Console, _ []string) (string, error) {
			c.win.minimized = true
			return "", nil
		}},
		{name: "show", desc: "restore from tray", handle: func(c *Console, _ []string) (string, error) {
			c.show()
			return "", nil
		}},
		{name: "quit", aliases: []string{"exit"}, desc: "exit", handle: func(c *Console, _ []string) (string, error) {
			c.quit = true
			return "bye", nil
		}},
	}
	for i := range commands {
		cmd := &commands[i]
		commandIndex[cmd.name] = cmd
		for _, a := range cmd.aliases {
			commandIndex[a] = cmd
		}
	}
}

// Exec runs one command line and returns the reply.
func (c *Console) Exec(line string) string {
	words := splitLine(line)
	if len(words) == 0 {
		return ""
	}
	name := strings.ToLower(words[0])
	cmd, ok := commandIndex[name]
	if !ok {
		return fmt.Sprintf("unknown command %q; try help", name)
	}
	args := words[1:]
	if len(args) < cmd.minArgs {
		return "usage: " + cmd.name + " " + cmd.usage
	}
	reply, err := cmd.handle(c, args)
	if err != nil {
		c.log.Debug("command rejected", logx.String("cmd", cmd.name), logx.Err(err))
		return "error: " + err.Error()
	}
	return reply
}

func (c *Console) cmdHelp(_ []string) (string, error) {
	var b strings.Builder
	b.WriteString("commands:")
	for _, cmd := range commands {
		b.WriteString("\n  ")
		b.WriteString(cmd.name)
		if cmd.usage != "" {
			b.WriteString(" " + cmd.usage)
		}
		b.WriteString(" - " + cmd.desc)
	}
	return b.String(), nil
}

func (c *Console) cmdStatus(_ []string) (string, error) {
	s := c.engine.Snapshot()
	state := "running"
	if !s.Enabled {
		state = "paused"
	}
	if !s.HasActive {
		return state + "; no active profile", nil
	}
	out := fmt.Sprintf("%s; profile %q; now: %s", state, s.ActiveProfile, s.Status)
	if s.HasNext {
		out += fmt.Sprintf("; next: %s %s at %s", s.Next.Kind.Label(), s.Next.Name, s.NextAt.Format("15:04:05"))
	}
	if c.tracker.Restoring() {
		out += "; window " + c.tracker.String()
	}
	return out, nil
}

func (c *Console) cmdNext(_ []string) (string, error) {
	s := c.engine.Snapshot()
	if !s.HasNext {
		return "nothing scheduled", nil
	}
	day := "today"
	if !sameDay(s.NextAt, time.Now()) {
		day = "tomorrow"
	}
	return fmt.Sprintf("%s %s (%s) %s at %s", s.Next.Kind.Label(), s.Next.Name, s.Next.Time, day, s.NextAt.Format("15:04:05")), nil
}

func (c *Console) cmdList(_ []string) (string, error) {
	prof, err := c.active()
	if err != nil {
		return "", err
	}
	if len(prof.Periods) == 0 {
		return fmt.Sprintf("%q has no periods", prof.Name), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (start: %s, end: %s)", prof.Name, prof.Sound.Start, prof.Sound.End)
	for i, p := range prof.Periods {
		off := ""
		if !p.Enabled {
			off = " [off]"
		}
		fmt.Fprintf(&b, "\n%3d  %s  %-5s  %s%s", i+1, p.Time, p.Kind, p.Name, off)
	}
	return b.String(), nil
}

func (c *Console) cmdAdd(args []string) (string, error) {
	prof, err := c.active()
	if err != nil {
		return "", err
	}
	kind, err := schedule.ParsePeriodKind(strings.ToLower(args[1]))
	if err != nil {
		return "", err
	}
	name := strings.Join(args[2:], " ")
	if err := prof.AddPeriod(args[0], kind, name); err != nil {
		return "", err
	}
	c.commit()
	return "added " + name, nil
}

func (c *Console) cmdTime(args []string) (string, error) {
	prof, i, err := c.period(args[0])
	if err != nil {
		return "", err
	}
	name := prof.Periods[i].Name
	if err := prof.SetPeriodTime(i, args[1]); err != nil {
		return "", err
	}
	c.commit()
	return "moved " + name, nil
}

func (c *Console) cmdName(args []string) (string, error) {
	prof, i, err := c.period(args[0])
	if err != nil {
		return "", err
	}
	if err := prof.RenamePeriod(i, strings.Join(args[1:], " ")); err != nil {
		return "", err
	}
	c.commit()
	return "renamed", nil
}

func (c *Console) cmdRemove(args []string) (string, error) {
	prof, i, err := c.period(args[0])
	if err != nil {
		return "", err
	}
	name := prof.Periods[i].Name
	if err := prof.RemovePeriod(i); err != nil {
		return "", err
	}
	c.commit()
	return "removed " + name, nil
}

func (c *Console) setEnabled(arg string, on bool) (string, error) {
	prof, i, err := c.period(arg)
	if err != nil {
		return "", err
	}
	if err := prof.SetPeriodEnabled(i, on); err != nil {
		return "", err
	}
	c.commit()
	if on {
		return "enabled " + prof.Periods[i].Name, nil
	}
	return "disabled " + prof.Periods[i].Name, nil
}

func (c *Console) cmdRename(args []string) (string, error) {
	prof, err := c.active()
	if err != nil {
		return "", err
	}
	prof.Rename(strings.Join(args, " "))
	c.commit()
	return "profile renamed to " + prof.Name, nil
}

func (c *Console) cmdProfiles(_ []string) (string, error) {
	if len(c.cfg.Schedules) == 0 {
		return "no profiles; create one with new NAME", nil
	}
	lines := make([]string, 0, len(c.cfg.Schedules))
	for _, s := range c.cfg.Schedules {
		mark := " "
		if c.cfg.ActiveScheduleID != nil && *c.cfg.ActiveScheduleID == s.ID {
			mark = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %d  %s (%d periods)", mark, s.ID, s.Name, len(s.Periods)))
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Console) cmdUse(args []string) (string, error) {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad profile id %q", args[0])
	}
	if c.cfg.Schedule(id) == nil {
		return "", fmt.Errorf("no profile %d", id)
	}
	c.cfg.SetActiveSchedule(&id)
	c.commit()
	return "using " + c.cfg.ActiveSchedule().Name, nil
}

func (c *Console) cmdNew(args []string) (string, error) {
	id := c.cfg.CreateEmptySchedule(strings.Join(args, " "))
	c.commit()
	return fmt.Sprintf("created profile %d", id), nil
}

func (c *Console) cmdDrop(_ []string) (string, error) {
	removed, ok := c.cfg.RemoveActiveSchedule()
	if !ok {
		return "", schedule.ErrNoActiveSchedule
	}
	c.commit()
	if a := c.cfg.ActiveSchedule(); a != nil {
		return fmt.Sprintf("deleted %s; now using %s", removed.Name, a.Name), nil
	}
	return "deleted " + removed.Name + "; no profiles left", nil
}

func (c *Console) cmdSound(args []string) (string, error) {
	kind, err := schedule.ParsePeriodKind(strings.ToLower(args[0]))
	if err != nil {
		return "", err
	}
	var src schedule.SoundSource
	switch strings.ToLower(args[1]) {
	case "builtin":
		b := schedule.BuiltinSound(args[2])
		if !b.Valid() {
			names := make([]string, len(schedule.AllBuiltinSounds))
			for i, s := range schedule.AllBuiltinSounds {
				names[i] = string(s)
			}
			return "", fmt.Errorf("unknown builtin %q (have %s)", args[2], strings.Join(names, ", "))
		}
		src = schedule.Builtin(b)
	case "local":
		src = schedule.Local(strings.Join(args[2:], " "))
	default:
		return "", fmt.Errorf("sound type must be builtin or local, got %q", args[1])
	}
	if err := c.cfg.SetSound(kind, src); err != nil {
		return "", err
	}
	c.commit()
	return kind.Label() + " sound: " + src.String(), nil
}

func (c *Console) cmdHistory(args []string) (string, error) {
	if c.history == nil {
		return "history is off", nil
	}
	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return "", fmt.Errorf("bad count %q", args[0])
		}
		n = v
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	recs, err := c.history.RecentTriggers(ctx, n)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "no triggers recorded", nil
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		line := fmt.Sprintf("%s  %-5s %s (%s)", r.At.Local().Format("2006-01-02 15:04:05"), r.Kind, r.Period, r.Profile)
		if r.Warning != "" {
			line += "  ! " + r.Warning
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Console) cmdHealth(_ []string) (string, error) {
	if c.health == nil {
		return "no workers", nil
	}
	stats := c.health()
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	lines := make([]string, 0, len(stats))
	for _, s := range stats {
		line := fmt.Sprintf("%-16s active=%d starts=%d panics=%d", s.Name, s.Active, s.Starts, s.Panics)
		if s.LastErr != "" {
			line += " last_err=" + s.LastErr
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Console) active() (*schedule.ScheduleProfile, error) {
	if p := c.cfg.ActiveSchedule(); p != nil {
		return p, nil
	}
	return nil, schedule.ErrNoActiveSchedule
}

// period resolves a 1-based period number as shown by list.
func (c *Console) period(arg string) (*schedule.ScheduleProfile, int, error) {
	prof, err := c.active()
	if err != nil {
		return nil, 0, err
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, 0, fmt.Errorf("bad period number %q", arg)
	}
	if n < 1 || n > len(prof.Periods) {
		return nil, 0, fmt.Errorf("%w: %d", schedule.ErrPeriodIndex, n)
	}
	return prof, n - 1, nil
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
