package zaps

const (
	KindProfile    = 0
	KindZapRequest = 9734
	KindZapReceipt = 9735
	KindGoal       = 9041
)

const (
	msatPerSat     = 1000
	anonTag        = "anon"
	nameTag        = "name"
	voiceTag       = "voice"
	amountTag      = "amount"
	descriptionTag = "description"
	relaysTag      = "relays"
	recipientTag   = "p"
	eventRefTag    = "e"
)
