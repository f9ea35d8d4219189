package inbox

// Kind identifies how an inbound activity is dispatched.
type Kind int

const (
	KindUnhandled Kind = iota
	KindFollow
	KindAccept
	KindCreate
	KindLike
	KindAnnounce
	KindUndo
)

var kinds = map[string]Kind{
	"Follow":   KindFollow,
	"Accept":   KindAccept,
	"Create":   KindCreate,
	"Like":     KindLike,
	"Announce": KindAnnounce,
	"Undo":     KindUndo,
}

// KindOf maps an activity type to its Kind. Unknown types are KindUnhandled.
func KindOf(typ string) Kind {
	return kinds[typ]
}

func (k Kind) String() string {
	for typ, kind := range kinds {
		if kind == k {
			return typ
		}
	}
	return "Unhandled"
}
