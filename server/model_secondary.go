package server

import "fmt"

func (ps PlayerSessionState) Name() string {
	switch ps {
	case PS_NEW:
		return "NEW"
	case PS_PLAY:
		return "PLAY"
	case PS_OVER:
		return "OVER"
	default:
		return "N/A"
	}
}

func (k EventKind) Name() string {
	switch k {
	case EV_COMMAND:
		return "COMMAND"
	case EV_START:
		return "START"
	case EV_NEXT_MAP:
		return "NEXT_MAP"
	default:
		return fmt.Sprintf("n/a:%d", k)
	}
}

func (r SubmitResult) Name() string {
	switch r {
	case SUBMIT_OK:
		return "OK"
	case SUBMIT_INVALID:
		return "INVALID"
	case SUBMIT_NOT_RUNNING:
		return "NOT_RUNNING"
	case SUBMIT_COOLDOWN:
		return "COOLDOWN"
	default:
		return fmt.Sprintf("n/a:%d", r)
	}
}
