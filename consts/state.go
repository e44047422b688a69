package consts

const (
	// Expert display names
	Agent_WarrenBuffett = "Warren Buffett"
	Agent_PeterLynch    = "Peter Lynch"
	Agent_RayDalio      = "Ray Dalio"
	Agent_JamesSimons   = "James Simons"
	Agent_MarkMinervini = "Mark Minervini"
	Agent_Chairman      = "Council Chair"
)

const (
	// Stances extracted from expert analyses
	StanceStrongBuy  = "Strong Buy"
	StanceBuy        = "Buy"
	StanceHold       = "Hold"
	StanceSell       = "Sell"
	StanceStrongSell = "Strong Sell"
	StanceUnknown    = "Unclear"
)
