package signal

import (
	"github.com/dkeye/Lectern/internal/adapters/rtc"
	"github.com/dkeye/Lectern/internal/app/orch"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errNoMedia = domain.Errorf(domain.KindConflict, "no media connection, send sfu-offer first")

// handleSFUOffer answers a client offer. The first offer creates the
// server-side peer connection; later offers renegotiate it.
func handleSFUOffer(ctl *SignalWSController, cl *client, data []byte) error {
	var p sfuDescriptionMsg
	if err := decode(InSFUOffer, data, &p); err != nil {
		return err
	}
	if p.SDP == "" {
		return domain.ErrMissingField
	}
	sess, ok := ctl.Orch.Registry.Get(cl.sid)
	if !ok {
		return domain.ErrSessionNotFound
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}

	if mc := sess.Media(); mc != nil && !mc.IsClosed() {
		answer, err := mc.ApplyOfferAndCreateAnswer(offer)
		if err != nil {
			return badPayload(InSFUOffer, err)
		}
		ctl.reply(cl, orch.SFUDescription{Type: orch.MsgSFUAnswer, SDP: answer.SDP})
		return nil
	}

	wc, err := rtc.NewWebRTCConnection(ctl.opts.ICE, cl.sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		return domain.Wrap(domain.KindInternal, "create peer connection", err)
	}
	ctl.Orch.BindMediaHandlers(wc, cl.sid)
	// Attached before negotiation so early tracks find their session.
	sess.UpdateMedia(wc)
	if err := wc.Start(cl.ctx); err != nil {
		wc.Close()
		return domain.Wrap(domain.KindInternal, "start peer connection", err)
	}
	answer, err := wc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		wc.Close()
		return badPayload(InSFUOffer, err)
	}
	ctl.reply(cl, orch.SFUDescription{Type: orch.MsgSFUAnswer, SDP: answer.SDP})
	ctl.Orch.OnMediaReady(cl.sid)
	return nil
}

// handleSFUAnswer completes a server-initiated renegotiation.
func handleSFUAnswer(ctl *SignalWSController, cl *client, data []byte) error {
	var p sfuDescriptionMsg
	if err := decode(InSFUAnswer, data, &p); err != nil {
		return err
	}
	sess, ok := ctl.Orch.Registry.Get(cl.sid)
	if !ok {
		return domain.ErrSessionNotFound
	}
	mc := sess.Media()
	if mc == nil {
		return errNoMedia
	}
	if err := mc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
		return badPayload(InSFUAnswer, err)
	}
	return nil
}

func handleSFUCandidate(ctl *SignalWSController, cl *client, data []byte) error {
	var p sfuCandidateMsg
	if err := decode(InSFUCandidate, data, &p); err != nil {
		return err
	}
	sess, ok := ctl.Orch.Registry.Get(cl.sid)
	if !ok {
		return domain.ErrSessionNotFound
	}
	mc := sess.Media()
	if mc == nil {
		return errNoMedia
	}
	if err := mc.AddICECandidate(p.init()); err != nil {
		return badPayload(InSFUCandidate, err)
	}
	return nil
}
