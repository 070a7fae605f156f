package goal

type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "ACTIVE"
	GoalStatusCompleted GoalStatus = "COMPLETED"
	GoalStatusExpired   GoalStatus = "EXPIRED"
	GoalStatusCancelled GoalStatus = "CANCELLED"
)

var AllStatuses = []GoalStatus{
	GoalStatusActive,
	GoalStatusCompleted,
	GoalStatusExpired,
	GoalStatusCancelled,
}

func (s GoalStatus) IsValid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type TrackingMode string

const (
	TrackingAuto   TrackingMode = "AUTO"
	TrackingManual TrackingMode = "MANUAL"
)

func (m TrackingMode) IsValid() bool {
	return m == TrackingAuto || m == TrackingManual
}
