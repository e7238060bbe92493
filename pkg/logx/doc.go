// Package logx configures wcnotice's structured logging.
//
// Logger is a small wrapper over zerolog:
//   - the console stream is human-readable (short timestamp, short caller)
//     and moves to stderr while the command shell owns stdout
//   - the optional log file is JSON, one event per line
//   - Component, Period and Profile tag lines with the subsystem and the
//     timetable entry they concern, so a bell's path from the engine
//     through dispatch can be followed with one filter
package logx
