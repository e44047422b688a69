package consts

const (
	// Council experts, in registration order
	WarrenBuffett = "warren_buffett"
	PeterLynch    = "peter_lynch"
	RayDalio      = "ray_dalio"
	JamesSimons   = "james_simons"
	MarkMinervini = "mark_minervini"

	Chairman = "chairman"
)

// ExpertCount is the fixed size of the council.
const ExpertCount = 5

var ExpertOrder = []string{WarrenBuffett, PeterLynch, RayDalio, JamesSimons, MarkMinervini}
