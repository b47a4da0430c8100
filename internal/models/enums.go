package models

import (
	"fmt"
	"strconv"
	"strings"
)

// DateLayout is the calendar format certificates carry for sample and result dates.
const DateLayout = "2006/01/02"

type TestResult int

const (
	ResultNegative TestResult = 0
	ResultPositive TestResult = 1
)

func (r TestResult) String() string {
	switch r {
	case ResultNegative:
		return "negative"
	case ResultPositive:
		return "positive"
	default:
		return fmt.Sprintf("TestResult(%d)", int(r))
	}
}

// ParseTestResult normalizes the spellings issuers use in result sheets:
// 陰性 / negative / any numeric zero mean negative, 陽性 / positive / any
// other number mean positive. Anything else is rejected.
func ParseTestResult(raw string) (TestResult, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return 0, fmt.Errorf("empty test result")
	case s == "陰性" || strings.EqualFold(s, "negative"):
		return ResultNegative, nil
	case s == "陽性" || strings.EqualFold(s, "positive"):
		return ResultPositive, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized test result %q", raw)
	}
	if f == 0 {
		return ResultNegative, nil
	}
	return ResultPositive, nil
}

type Gender int

const (
	GenderMale   Gender = 0
	GenderFemale Gender = 1
)

func (g Gender) String() string {
	if g == GenderFemale {
		return "female"
	}
	return "male"
}

// ParseGender accepts the numeric ledger code or the English word.
func ParseGender(raw string) (Gender, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "0" || strings.EqualFold(s, "male"):
		return GenderMale, nil
	case s == "1" || strings.EqualFold(s, "female"):
		return GenderFemale, nil
	default:
		return 0, fmt.Errorf("unrecognized gender %q", raw)
	}
}

type Role int

const (
	RoleIssuer   Role = 0
	RoleBusiness Role = 1
	RoleAdmin    Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleBusiness:
		return "business"
	case RoleAdmin:
		return "admin"
	default:
		return "issuer"
	}
}
