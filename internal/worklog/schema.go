package worklog

// LogSchema names the fields of a time-log record
type LogSchema struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Date       string `mapstructure:"date" yaml:"date"`
	Hours      string `mapstructure:"hours" yaml:"hours"`
	Projects   string `mapstructure:"projects" yaml:"projects"`
	Staff      string `mapstructure:"staff" yaml:"staff"`
	TaskTitle  string `mapstructure:"task_title" yaml:"task_title"`
	TaskDetail string `mapstructure:"task_detail" yaml:"task_detail"`

	// ParsePK reads name and date out of a "@name _ @2025년 4월 7일 _ 월"
	// style title when the dedicated fields don't carry them.
	ParsePK bool `mapstructure:"parse_pk" yaml:"parse_pk"`
}

// SummarySchema names the fields of a summary record. Name is the
// identity (title) field and is never sent on update.
type SummarySchema struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Date       string `mapstructure:"date" yaml:"date"`
	TotalHours string `mapstructure:"total_hours" yaml:"total_hours"`
	Projects   string `mapstructure:"projects" yaml:"projects"`
	Narrative  string `mapstructure:"narrative" yaml:"narrative"`
	Status     string `mapstructure:"status" yaml:"status"`
	Group      string `mapstructure:"group" yaml:"group"`
	Team       string `mapstructure:"team" yaml:"team"`
}

// StaffSchema names the organizational fields on a staff record
type StaffSchema struct {
	Group string `mapstructure:"group" yaml:"group"`
	Team  string `mapstructure:"team" yaml:"team"`
}

// StatusLabels are the select option names written for each status
type StatusLabels struct {
	Normal string `mapstructure:"normal" yaml:"normal"`
	Under  string `mapstructure:"under" yaml:"under"`
	Over   string `mapstructure:"over" yaml:"over"`
}

// Label returns the option name for s
func (l StatusLabels) Label(s Status) string {
	switch s {
	case StatusNormal:
		return l.Normal
	case StatusOver:
		return l.Over
	default:
		return l.Under
	}
}

func DefaultLogSchema() LogSchema {
	return LogSchema{
		Name:       "PK",
		Date:       "날짜",
		Hours:      "근무시간",
		Projects:   "프로젝트명",
		Staff:      "담당자",
		TaskTitle:  "업무명",
		TaskDetail: "업무내용",
	}
}

func DefaultSummarySchema() SummarySchema {
	return SummarySchema{
		Name:       "이름",
		Date:       "날짜",
		TotalHours: "총합 시간",
		Projects:   "프로젝트 목록",
		Narrative:  "업무 요약",
		Status:     "정상 여부",
		Group:      "그룹",
		Team:       "팀",
	}
}

func DefaultStaffSchema() StaffSchema {
	return StaffSchema{Group: "그룹", Team: "팀"}
}

func DefaultStatusLabels() StatusLabels {
	return StatusLabels{
		Normal: "✅ 정상",
		Under:  "⚠️ 미달",
		Over:   "🔥 초과",
	}
}
