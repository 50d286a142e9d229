package device

import (
	"strconv"
	"strings"
)

// Op names one device operation in the circulator's text protocol.
type Op string

// Operations accepted by the circulator.
const (
	OpReadTemp    Op = "read temp"
	OpReadSetTemp Op = "read set temp"
	OpReadUnit    Op = "read unit"
	OpReadStatus  Op = "status"
	OpSetTemp     Op = "set temp"
	OpStart       Op = "start"
	OpStop        Op = "stop"
	OpSetTimer    Op = "set timer"
	OpStartTimer  Op = "start time"
	OpStopTimer   Op = "stop time"
	OpReadTimer   Op = "read timer"
	OpSetLED      Op = "set led"
)

// Command is one request to the device. The connection layer passes it
// through untouched.
type Command struct {
	Op   Op
	Args []string
}

// String renders the command in wire form, e.g. "set temp 135.5".
func (c Command) String() string {
	if len(c.Args) == 0 {
		return string(c.Op)
	}
	return string(c.Op) + " " + strings.Join(c.Args, " ")
}

func ReadTemp() Command    { return Command{Op: OpReadTemp} }
func ReadSetTemp() Command { return Command{Op: OpReadSetTemp} }
func ReadUnit() Command    { return Command{Op: OpReadUnit} }
func ReadStatus() Command  { return Command{Op: OpReadStatus} }
func Start() Command       { return Command{Op: OpStart} }
func Stop() Command        { return Command{Op: OpStop} }
func StartTimer() Command  { return Command{Op: OpStartTimer} }
func StopTimer() Command   { return Command{Op: OpStopTimer} }
func ReadTimer() Command   { return Command{Op: OpReadTimer} }

// SetTemp carries the temperature as decimal text so no precision is lost.
func SetTemp(value string) Command {
	return Command{Op: OpSetTemp, Args: []string{value}}
}

func SetTimer(minutes int) Command {
	return Command{Op: OpSetTimer, Args: []string{strconv.Itoa(minutes)}}
}

func SetLED(r, g, b int) Command {
	return Command{Op: OpSetLED, Args: []string{strconv.Itoa(r), strconv.Itoa(g), strconv.Itoa(b)}}
}
