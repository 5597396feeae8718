package rpc

import (
	"encoding/json"

	"rbtchain/crypto"
	"rbtchain/native/ringback"
	"rbtchain/services/indexer"
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ProgramErrorData is attached to rejections raised by the marketplace.
type ProgramErrorData struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type PlatformResult struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	ToneCount uint64 `json:"toneCount"`
}

type ArtistResult struct {
	Address           string   `json:"address"`
	Owner             string   `json:"owner"`
	Name              string   `json:"name"`
	ProfileURL        string   `json:"profileUrl"`
	Tones             []string `json:"tones"`
	Subscribers       []string `json:"subscribers"`
	SubscriptionCount uint64   `json:"subscriptionCount"`
	AmountReceived    uint64   `json:"amountReceived"`
}

type FanResult struct {
	Address           string `json:"address"`
	Owner             string `json:"owner"`
	Name              string `json:"name"`
	ProfileURL        string `json:"profileUrl"`
	SubscribedTone    string `json:"subscribedTone,omitempty"`
	SubscriptionCount uint64 `json:"subscriptionCount"`
}

type ToneResult struct {
	Address        string `json:"address"`
	Owner          string `json:"owner"`
	Sequence       uint64 `json:"sequence"`
	AudioName      string `json:"audioName"`
	AudioCode      uint8  `json:"audioCode"`
	AudioURL       string `json:"audioUrl"`
	Price          uint64 `json:"price"`
	Duration       string `json:"duration"`
	CreatedAt      uint64 `json:"createdAt"`
	AmountReceived uint64 `json:"amountReceived"`
}

type SubscriptionResult struct {
	Address      string `json:"address"`
	Fan          string `json:"fan"`
	Tone         string `json:"tone"`
	Sequence     uint64 `json:"sequence"`
	Artist       string `json:"artist"`
	Amount       uint64 `json:"amount"`
	SubscribedAt uint64 `json:"subscribedAt"`
}

// SubscriptionQuery filters rbt_listSubscriptions.
type SubscriptionQuery struct {
	Fan      string  `json:"fan,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	Sequence *uint64 `json:"sequence,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

var zeroAddress [20]byte

func formatList(refs [][20]byte) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, crypto.FormatAddress(ref))
	}
	return out
}

func newPlatformResult(addr [20]byte, p *ringback.Platform) PlatformResult {
	return PlatformResult{
		Address:   crypto.FormatAddress(addr),
		Owner:     crypto.FormatAddress(p.Owner),
		ToneCount: p.ToneCount,
	}
}

func newArtistResult(addr [20]byte, a *ringback.ArtistProfile) ArtistResult {
	return ArtistResult{
		Address:           crypto.FormatAddress(addr),
		Owner:             crypto.FormatAddress(a.Owner),
		Name:              a.Name,
		ProfileURL:        a.ProfileURL,
		Tones:             formatList(a.Tones),
		Subscribers:       formatList(a.Subscribers),
		SubscriptionCount: a.SubscriptionCount,
		AmountReceived:    a.AmountReceived,
	}
}

func newFanResult(addr [20]byte, f *ringback.FanProfile) FanResult {
	res := FanResult{
		Address:           crypto.FormatAddress(addr),
		Owner:             crypto.FormatAddress(f.Owner),
		Name:              f.Name,
		ProfileURL:        f.ProfileURL,
		SubscriptionCount: f.SubscriptionCount,
	}
	if f.SubscribedTone != zeroAddress {
		res.SubscribedTone = crypto.FormatAddress(f.SubscribedTone)
	}
	return res
}

func newToneResult(addr [20]byte, t *ringback.RingBackTone) ToneResult {
	return ToneResult{
		Address:        crypto.FormatAddress(addr),
		Owner:          crypto.FormatAddress(t.Owner),
		Sequence:       t.Sequence,
		AudioName:      t.AudioName,
		AudioCode:      t.AudioCode,
		AudioURL:       t.AudioURL,
		Price:          t.Price,
		Duration:       t.Duration,
		CreatedAt:      t.CreatedAt,
		AmountReceived: t.AmountReceived,
	}
}

func newSubscriptionResult(addr [20]byte, sequence uint64, s *ringback.Subscription) SubscriptionResult {
	return SubscriptionResult{
		Address:      crypto.FormatAddress(addr),
		Fan:          crypto.FormatAddress(s.Fan),
		Tone:         crypto.FormatAddress(s.Tone),
		Sequence:     sequence,
		Artist:       crypto.FormatAddress(s.Artist),
		Amount:       s.Amount,
		SubscribedAt: s.SubscribedAt,
	}
}

func indexedSubscriptionResult(row indexer.Subscription) SubscriptionResult {
	return SubscriptionResult{
		Address:      row.Address,
		Fan:          row.Fan,
		Tone:         row.Tone,
		Sequence:     row.Sequence,
		Artist:       row.Artist,
		Amount:       row.Amount,
		SubscribedAt: uint64(row.SubscribedAt),
	}
}
