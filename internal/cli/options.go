package cli

// Options is the root for the CLI. Struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Verbose bool `short:"v" long:"verbose" description:"Enable debug logging"`

	Convert *ConvertCmd `command:"convert" description:"Convert a model file into a web bundle"`
	Run     *RunCmd     `command:"run"     description:"Run the conversions declared in a config file"`
	Inspect *InspectCmd `command:"inspect" description:"Show the format, producer and tensors of a model file"`
	Verify  *VerifyCmd  `command:"verify"  description:"Check a written bundle against its model.json"`
	Version *VersionCmd `command:"version" description:"Print the modelweb version"`
}

// Init instantiates the sub-command named by arg so that go-flags can
// populate its fields. It reports whether arg named a command.
func (o *Options) Init(arg string, a *app) bool {
	switch arg {
	case "convert":
		o.Convert = &ConvertCmd{app: a}
	case "run":
		o.Run = &RunCmd{app: a}
	case "inspect":
		o.Inspect = &InspectCmd{app: a}
	case "verify":
		o.Verify = &VerifyCmd{app: a}
	case "version":
		o.Version = &VersionCmd{app: a}
	default:
		return false
	}
	return true
}
