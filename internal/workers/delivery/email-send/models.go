package emailsend

// Message is one rendered email ready for a provider.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	IsHTML  bool
}
