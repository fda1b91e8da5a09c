package metrics

type contextKey string

func (c contextKey) String() string {
	return "dubworkerContextKey" + string(c)
}

var RetriesKey = contextKey("DubworkerRetries")
