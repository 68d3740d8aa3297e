package ppp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

var allStates = []ppp.State{
	ppp.StateInitial, ppp.StateStarting, ppp.StateClosed, ppp.StateStopped, ppp.StateClosing,
	ppp.StateStopping, ppp.StateReqSent, ppp.StateAckRcvd, ppp.StateAckSent, ppp.StateOpened,
}

var allEvents = []ppp.Event{
	ppp.EventUp, ppp.EventDown, ppp.EventOpen, ppp.EventClose, ppp.EventTimeoutPlus,
	ppp.EventTimeoutMinus, ppp.EventRCRGood, ppp.EventRCRBad, ppp.EventRCA, ppp.EventRCN,
	ppp.EventRTR, ppp.EventRTA, ppp.EventRUC, ppp.EventRXJGood, ppp.EventRXJBad, ppp.EventRXR,
}

var _ = Describe("ApplyEvent", func() {
	const (
		tlu = ppp.ActionThisLayerUp
		tld = ppp.ActionThisLayerDown
		tls = ppp.ActionThisLayerStarted
		tlf = ppp.ActionThisLayerFinished
		irc = ppp.ActionInitRestartCount
		zrc = ppp.ActionZeroRestartCount
		scr = ppp.ActionSendConfigureRequest
		sca = ppp.ActionSendConfigureAck
		scn = ppp.ActionSendConfigureNak
		str = ppp.ActionSendTerminateRequest
		sta = ppp.ActionSendTerminateAck
		scj = ppp.ActionSendCodeReject
		ser = ppp.ActionSendEchoReply
	)

	DescribeTable("legal transitions",
		func(from ppp.State, phase ppp.Phase, event ppp.Event, to ppp.State, toPhase ppp.Phase, actions []ppp.Action) {
			res := ppp.ApplyEvent(from, phase, event)

			Expect(res.Legal).To(BeTrue())
			Expect(res.OldState).To(Equal(from))
			Expect(res.NewState).To(Equal(to))
			Expect(res.Changed).To(Equal(from != to))
			Expect(res.Phase).To(Equal(toPhase))
			Expect(res.PhaseChanged).To(Equal(phase != toPhase))
			if len(actions) == 0 {
				Expect(res.Actions).To(BeEmpty())
			} else {
				Expect(res.Actions).To(Equal(actions))
			}
		},
		Entry("Initial Up", ppp.StateInitial, ppp.PhaseDown, ppp.EventUp,
			ppp.StateClosed, ppp.PhaseDown, nil),
		Entry("Initial Open", ppp.StateInitial, ppp.PhaseDown, ppp.EventOpen,
			ppp.StateStarting, ppp.PhaseDown, []ppp.Action{tls}),
		Entry("Starting Up", ppp.StateStarting, ppp.PhaseDown, ppp.EventUp,
			ppp.StateReqSent, ppp.PhaseEstablishment, []ppp.Action{irc, scr}),
		Entry("Closed Open", ppp.StateClosed, ppp.PhaseDown, ppp.EventOpen,
			ppp.StateReqSent, ppp.PhaseEstablishment, []ppp.Action{irc, scr}),
		Entry("Closed RCR+", ppp.StateClosed, ppp.PhaseDown, ppp.EventRCRGood,
			ppp.StateClosed, ppp.PhaseDown, []ppp.Action{sta}),
		Entry("Req-Sent RCR+", ppp.StateReqSent, ppp.PhaseEstablishment, ppp.EventRCRGood,
			ppp.StateAckSent, ppp.PhaseEstablishment, []ppp.Action{sca}),
		Entry("Req-Sent RCR-", ppp.StateReqSent, ppp.PhaseEstablishment, ppp.EventRCRBad,
			ppp.StateReqSent, ppp.PhaseEstablishment, []ppp.Action{scn}),
		Entry("Req-Sent RCA", ppp.StateReqSent, ppp.PhaseEstablishment, ppp.EventRCA,
			ppp.StateAckRcvd, ppp.PhaseEstablishment, []ppp.Action{irc}),
		Entry("Req-Sent RCN", ppp.StateReqSent, ppp.PhaseEstablishment, ppp.EventRCN,
			ppp.StateReqSent, ppp.PhaseEstablishment, []ppp.Action{irc, scr}),
		Entry("Req-Sent TO-", ppp.StateReqSent, ppp.PhaseEstablishment, ppp.EventTimeoutMinus,
			ppp.StateStopped, ppp.PhaseTermination, []ppp.Action{tlf}),
		Entry("Ack-Rcvd RCR+", ppp.StateAckRcvd, ppp.PhaseEstablishment, ppp.EventRCRGood,
			ppp.StateOpened, ppp.PhaseEstablishment, []ppp.Action{sca, tlu}),
		Entry("Ack-Rcvd RCR-", ppp.StateAckRcvd, ppp.PhaseEstablishment, ppp.EventRCRBad,
			ppp.StateAckRcvd, ppp.PhaseEstablishment, []ppp.Action{scn}),
		Entry("Ack-Rcvd TO+", ppp.StateAckRcvd, ppp.PhaseEstablishment, ppp.EventTimeoutPlus,
			ppp.StateReqSent, ppp.PhaseEstablishment, []ppp.Action{scr}),
		Entry("Ack-Sent RCA", ppp.StateAckSent, ppp.PhaseEstablishment, ppp.EventRCA,
			ppp.StateOpened, ppp.PhaseEstablishment, []ppp.Action{irc, tlu}),
		Entry("Ack-Sent RCR-", ppp.StateAckSent, ppp.PhaseEstablishment, ppp.EventRCRBad,
			ppp.StateReqSent, ppp.PhaseEstablishment, []ppp.Action{scn}),
		Entry("Stopped RCR+", ppp.StateStopped, ppp.PhaseTermination, ppp.EventRCRGood,
			ppp.StateAckSent, ppp.PhaseTermination, []ppp.Action{irc, scr, sca}),
		Entry("Stopped RCR-", ppp.StateStopped, ppp.PhaseTermination, ppp.EventRCRBad,
			ppp.StateReqSent, ppp.PhaseTermination, []ppp.Action{irc, scr, scn}),
		Entry("Opened Close", ppp.StateOpened, ppp.PhaseEstablished, ppp.EventClose,
			ppp.StateClosing, ppp.PhaseTermination, []ppp.Action{tld, irc, str}),
		Entry("Opened Down", ppp.StateOpened, ppp.PhaseEstablished, ppp.EventDown,
			ppp.StateStarting, ppp.PhaseEstablished, []ppp.Action{tld}),
		Entry("Opened RCR+", ppp.StateOpened, ppp.PhaseEstablished, ppp.EventRCRGood,
			ppp.StateAckSent, ppp.PhaseEstablishment, []ppp.Action{tld, scr, sca}),
		Entry("Opened RTR", ppp.StateOpened, ppp.PhaseEstablished, ppp.EventRTR,
			ppp.StateStopping, ppp.PhaseTermination, []ppp.Action{tld, zrc, sta}),
		Entry("Opened RUC", ppp.StateOpened, ppp.PhaseEstablished, ppp.EventRUC,
			ppp.StateOpened, ppp.PhaseEstablished, []ppp.Action{scj}),
		Entry("Opened RXJ-", ppp.StateOpened, ppp.PhaseEstablished, ppp.EventRXJBad,
			ppp.StateStopping, ppp.PhaseTermination, []ppp.Action{tld, irc, str}),
		Entry("Opened RXR", ppp.StateOpened, ppp.PhaseEstablished, ppp.EventRXR,
			ppp.StateOpened, ppp.PhaseEstablished, []ppp.Action{ser}),
		Entry("Closing RTA", ppp.StateClosing, ppp.PhaseTermination, ppp.EventRTA,
			ppp.StateClosed, ppp.PhaseTermination, []ppp.Action{tlf}),
		Entry("Stopping TO-", ppp.StateStopping, ppp.PhaseTermination, ppp.EventTimeoutMinus,
			ppp.StateStopped, ppp.PhaseTermination, []ppp.Action{tlf}),
	)

	DescribeTable("illegal events",
		func(state ppp.State, event ppp.Event) {
			res := ppp.ApplyEvent(state, ppp.PhaseEstablishment, event)

			Expect(res.Legal).To(BeFalse())
			Expect(res.NewState).To(Equal(state))
			Expect(res.Phase).To(Equal(ppp.PhaseEstablishment))
			Expect(res.PhaseChanged).To(BeFalse())
			Expect(res.Actions).To(BeEmpty())
		},
		Entry("Initial Down", ppp.StateInitial, ppp.EventDown),
		Entry("Initial RCR+", ppp.StateInitial, ppp.EventRCRGood),
		Entry("Initial TO+", ppp.StateInitial, ppp.EventTimeoutPlus),
		Entry("Starting RCA", ppp.StateStarting, ppp.EventRCA),
		Entry("Closed Up", ppp.StateClosed, ppp.EventUp),
		Entry("Closed TO-", ppp.StateClosed, ppp.EventTimeoutMinus),
		Entry("Opened Up", ppp.StateOpened, ppp.EventUp),
		Entry("Opened TO+", ppp.StateOpened, ppp.EventTimeoutPlus),
	)

	Describe("Close in Starting", func() {
		It("should finish the lower layer once it started coming up", func() {
			res := ppp.ApplyEvent(ppp.StateStarting, ppp.PhaseEstablishment, ppp.EventClose)

			Expect(res.NewState).To(Equal(ppp.StateInitial))
			Expect(res.Phase).To(Equal(ppp.PhaseDown))
			Expect(res.Actions).To(Equal([]ppp.Action{ppp.ActionThisLayerFinished}))
		})

		It("should just return to Initial before the device was asked", func() {
			res := ppp.ApplyEvent(ppp.StateStarting, ppp.PhaseDown, ppp.EventClose)

			Expect(res.NewState).To(Equal(ppp.StateInitial))
			Expect(res.PhaseChanged).To(BeFalse())
			Expect(res.Actions).To(BeEmpty())
		})
	})

	It("should have no side effects", func() {
		for _, state := range allStates {
			for _, event := range allEvents {
				first := ppp.ApplyEvent(state, ppp.PhaseEstablishment, event)
				second := ppp.ApplyEvent(state, ppp.PhaseEstablishment, event)
				Expect(second).To(Equal(first), "%s on %s", event, state)
			}
		}
	})

	It("should leave state untouched for every illegal pair", func() {
		illegal := 0
		for _, state := range allStates {
			for _, event := range allEvents {
				res := ppp.ApplyEvent(state, ppp.PhaseAuthentication, event)
				if res.Legal {
					continue
				}
				illegal++
				Expect(res.NewState).To(Equal(state), "%s on %s", event, state)
				Expect(res.Phase).To(Equal(ppp.PhaseAuthentication))
			}
		}
		// The "-" cells of the RFC 1661 table.
		Expect(illegal).To(Equal(39))
	})

	It("should name states, events and actions", func() {
		Expect(ppp.StateReqSent.String()).To(Equal("Req-Sent"))
		Expect(ppp.EventTimeoutMinus.String()).To(Equal("TO-"))
		Expect(ppp.ActionSendConfigureNak.String()).To(Equal("scn"))
		Expect(ppp.PhaseEstablishment.String()).To(Equal("Establishment"))
	})
})
