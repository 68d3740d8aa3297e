package options_test

import (
	"encoding/binary"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
	"github.com/codelaboratoryltd/ppp/pkg/ppp/options"
)

func request(items ...ppp.ConfigureItem) *ppp.ConfigurePacket {
	req := ppp.NewConfigurePacket(ppp.CodeConfigureRequest)
	req.Identifier = 1
	for _, item := range items {
		Expect(req.AddItem(item)).To(Succeed())
	}
	return req
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

var _ = Describe("MRU", func() {
	var (
		handler *options.MRU
		peerMRU int
		nak     *ppp.ConfigurePacket
		reject  *ppp.ConfigurePacket
	)

	BeforeEach(func() {
		peerMRU = 0
		handler = options.NewMRU(1492, 1500, func(mru int) { peerMRU = mru })
		nak = ppp.NewConfigurePacket(ppp.CodeConfigureNak)
		reject = ppp.NewConfigurePacket(ppp.CodeConfigureReject)
	})

	It("should request a non-default MRU", func() {
		req := request()
		Expect(handler.AddToRequest(req)).To(Succeed())
		item, ok := req.ItemWithType(ppp.OptionMRU)
		Expect(ok).To(BeTrue())
		Expect(item.Data).To(Equal(u16(1492)))
	})

	It("should not request the default MRU", func() {
		handler = options.NewMRU(ppp.DefaultMRU, 1500, nil)
		req := request()
		Expect(handler.AddToRequest(req)).To(Succeed())
		Expect(req.CountItems()).To(Equal(0))
	})

	DescribeTable("peer requests",
		func(mru uint16, nakked bool, suggestion uint16) {
			req := request(ppp.ConfigureItem{Type: ppp.OptionMRU, Data: u16(mru)})
			Expect(handler.ParseConfigureRequest(req, 0, nak, reject)).To(Succeed())
			Expect(reject.CountItems()).To(Equal(0))
			if !nakked {
				Expect(nak.CountItems()).To(Equal(0))
				return
			}
			item, ok := nak.ItemWithType(ppp.OptionMRU)
			Expect(ok).To(BeTrue())
			Expect(item.Data).To(Equal(u16(suggestion)))
		},
		Entry("acceptable value", uint16(1400), false, uint16(0)),
		Entry("too small", uint16(32), true, uint16(options.MinMRU)),
		Entry("too large", uint16(9000), true, uint16(1500)),
	)

	It("should fail on a malformed MRU", func() {
		req := request(ppp.ConfigureItem{Type: ppp.OptionMRU, Data: []byte{1}})
		err := handler.ParseConfigureRequest(req, 0, nak, reject)
		Expect(errors.Is(err, ppp.ErrMalformedPacket)).To(BeTrue())
	})

	It("should fail on a duplicated MRU", func() {
		req := request(
			ppp.ConfigureItem{Type: ppp.OptionMRU, Data: u16(1400)},
			ppp.ConfigureItem{Type: ppp.OptionMRU, Data: u16(1400)},
		)
		err := handler.ParseConfigureRequest(req, 1, nak, reject)
		Expect(errors.Is(err, options.ErrDuplicateOption)).To(BeTrue())
	})

	It("should report the acknowledged peer MRU", func() {
		ack := request(ppp.ConfigureItem{Type: ppp.OptionMRU, Data: u16(1400)})
		Expect(handler.SendingAck(ack)).To(Succeed())
		Expect(peerMRU).To(Equal(1400))
		Expect(handler.PeerMRU()).To(Equal(uint16(1400)))
	})

	It("should assume the default MRU when the peer omits it", func() {
		Expect(handler.SendingAck(request())).To(Succeed())
		Expect(peerMRU).To(Equal(ppp.DefaultMRU))
	})

	It("should follow an acceptable Nak", func() {
		reply := request(ppp.ConfigureItem{Type: ppp.OptionMRU, Data: u16(1280)})
		Expect(handler.ParseNak(reply)).To(Succeed())
		Expect(handler.LocalMRU()).To(Equal(uint16(1280)))
	})

	It("should ignore an out of range Nak", func() {
		reply := request(ppp.ConfigureItem{Type: ppp.OptionMRU, Data: u16(10)})
		Expect(handler.ParseNak(reply)).To(Succeed())
		Expect(handler.LocalMRU()).To(Equal(uint16(1492)))
	})

	It("should stop requesting after a Reject and restore on Reset", func() {
		reply := request(ppp.ConfigureItem{Type: ppp.OptionMRU, Data: u16(1492)})
		Expect(handler.ParseReject(reply)).To(Succeed())

		req := request()
		Expect(handler.AddToRequest(req)).To(Succeed())
		Expect(req.CountItems()).To(Equal(0))

		handler.Reset()
		Expect(handler.LocalMRU()).To(Equal(uint16(1492)))
	})
})

var _ = Describe("MagicNumber", func() {
	var (
		handler *options.MagicNumber
		values  []uint32
		nak     *ppp.ConfigurePacket
		reject  *ppp.ConfigurePacket
	)

	source := func() (uint32, error) {
		v := values[0]
		values = values[1:]
		return v, nil
	}

	BeforeEach(func() {
		values = []uint32{0x11111111, 0x22222222, 0x33333333, 0x44444444}
		handler = options.NewMagicNumberWithSource(source)
		nak = ppp.NewConfigurePacket(ppp.CodeConfigureNak)
		reject = ppp.NewConfigurePacket(ppp.CodeConfigureReject)
	})

	It("should request a non-zero magic number", func() {
		req := request()
		Expect(handler.AddToRequest(req)).To(Succeed())
		item, ok := req.ItemWithType(ppp.OptionMagicNumber)
		Expect(ok).To(BeTrue())
		Expect(item.Data).To(Equal(u32(0x11111111)))
		Expect(handler.LocalMagicNumber()).To(Equal(uint32(0x11111111)))
	})

	It("should accept a distinct peer magic number", func() {
		Expect(handler.AddToRequest(request())).To(Succeed())
		req := request(ppp.ConfigureItem{Type: ppp.OptionMagicNumber, Data: u32(0xCAFEBABE)})
		Expect(handler.ParseConfigureRequest(req, 0, nak, reject)).To(Succeed())
		Expect(nak.CountItems()).To(Equal(0))
		Expect(handler.PeerMagicNumber()).To(Equal(uint32(0xCAFEBABE)))
	})

	It("should Nak a zero magic number", func() {
		Expect(handler.AddToRequest(request())).To(Succeed())
		req := request(ppp.ConfigureItem{Type: ppp.OptionMagicNumber, Data: u32(0)})
		Expect(handler.ParseConfigureRequest(req, 0, nak, reject)).To(Succeed())
		item, ok := nak.ItemWithType(ppp.OptionMagicNumber)
		Expect(ok).To(BeTrue())
		Expect(item.Data).To(Equal(u32(0x22222222)))
	})

	It("should pick a new number and Nak on collision", func() {
		Expect(handler.AddToRequest(request())).To(Succeed())
		req := request(ppp.ConfigureItem{Type: ppp.OptionMagicNumber, Data: u32(0x11111111)})
		Expect(handler.ParseConfigureRequest(req, 0, nak, reject)).To(Succeed())
		Expect(handler.LocalMagicNumber()).To(Equal(uint32(0x22222222)))
		item, ok := nak.ItemWithType(ppp.OptionMagicNumber)
		Expect(ok).To(BeTrue())
		Expect(item.Data).To(Equal(u32(0x33333333)))
	})

	It("should fail on a wrong length", func() {
		req := request(ppp.ConfigureItem{Type: ppp.OptionMagicNumber, Data: []byte{1, 2}})
		err := handler.ParseConfigureRequest(req, 0, nak, reject)
		Expect(errors.Is(err, ppp.ErrMalformedPacket)).To(BeTrue())
	})

	It("should regenerate when Nak'ed", func() {
		Expect(handler.AddToRequest(request())).To(Succeed())
		reply := request(ppp.ConfigureItem{Type: ppp.OptionMagicNumber, Data: u32(0x99)})
		Expect(handler.ParseNak(reply)).To(Succeed())
		Expect(handler.LocalMagicNumber()).To(Equal(uint32(0x22222222)))
	})

	It("should stop stamping after a Reject until Reset", func() {
		Expect(handler.AddToRequest(request())).To(Succeed())
		reply := request(ppp.ConfigureItem{Type: ppp.OptionMagicNumber, Data: u32(0x11111111)})
		Expect(handler.ParseReject(reply)).To(Succeed())
		Expect(handler.LocalMagicNumber()).To(BeZero())

		req := request()
		Expect(handler.AddToRequest(req)).To(Succeed())
		Expect(req.CountItems()).To(Equal(0))

		handler.Reset()
		Expect(handler.LocalMagicNumber()).To(Equal(uint32(0x11111111)))
	})

	It("should implement MagicNumberProvider", func() {
		var provider ppp.MagicNumberProvider = options.NewMagicNumber()
		Expect(provider).NotTo(BeNil())
	})
})

var _ = Describe("AuthProtocol", func() {
	var (
		nak    *ppp.ConfigurePacket
		reject *ppp.ConfigurePacket
	)

	BeforeEach(func() {
		nak = ppp.NewConfigurePacket(ppp.CodeConfigureNak)
		reject = ppp.NewConfigurePacket(ppp.CodeConfigureReject)
	})

	Context("as authenticator", func() {
		var handler *options.AuthProtocol

		BeforeEach(func() {
			handler = options.NewAuthProtocol(ppp.ProtocolCHAP, ppp.ProtocolCHAP, ppp.ProtocolPAP)
		})

		It("should request CHAP with MD5", func() {
			req := request()
			Expect(handler.AddToRequest(req)).To(Succeed())
			item, ok := req.ItemWithType(ppp.OptionAuthProtocol)
			Expect(ok).To(BeTrue())
			Expect(item.Data).To(Equal([]byte{0xC2, 0x23, options.CHAPAlgorithmMD5}))
		})

		It("should switch to an acceptable Nak suggestion", func() {
			reply := request(ppp.ConfigureItem{Type: ppp.OptionAuthProtocol, Data: u16(ppp.ProtocolPAP)})
			Expect(handler.ParseNak(reply)).To(Succeed())
			Expect(handler.ParseAck(reply)).To(Succeed())
			Expect(handler.LocalProtocol()).To(Equal(uint16(ppp.ProtocolPAP)))
		})

		It("should fail when the peer rejects authentication", func() {
			reply := request(ppp.ConfigureItem{Type: ppp.OptionAuthProtocol, Data: u16(ppp.ProtocolPAP)})
			err := handler.ParseReject(reply)
			Expect(errors.Is(err, options.ErrAuthRejected)).To(BeTrue())
		})
	})

	Context("as authenticatee", func() {
		var handler *options.AuthProtocol

		BeforeEach(func() {
			handler = options.NewAuthProtocol(0, ppp.ProtocolPAP)
		})

		It("should not request authentication", func() {
			req := request()
			Expect(handler.AddToRequest(req)).To(Succeed())
			Expect(req.CountItems()).To(Equal(0))
		})

		It("should accept a supported protocol", func() {
			req := request(ppp.ConfigureItem{Type: ppp.OptionAuthProtocol, Data: u16(ppp.ProtocolPAP)})
			Expect(handler.ParseConfigureRequest(req, 0, nak, reject)).To(Succeed())
			Expect(nak.CountItems()).To(Equal(0))
			Expect(handler.PeerProtocol()).To(Equal(uint16(ppp.ProtocolPAP)))
		})

		It("should Nak an unsupported protocol with its preference", func() {
			req := request(ppp.ConfigureItem{Type: ppp.OptionAuthProtocol, Data: []byte{0xC2, 0x23, 0x81}})
			Expect(handler.ParseConfigureRequest(req, 0, nak, reject)).To(Succeed())
			item, ok := nak.ItemWithType(ppp.OptionAuthProtocol)
			Expect(ok).To(BeTrue())
			Expect(item.Data).To(Equal(u16(ppp.ProtocolPAP)))
		})
	})

	It("should leave the item unhandled when nothing is acceptable", func() {
		handler := options.NewAuthProtocol(0)
		req := request(ppp.ConfigureItem{Type: ppp.OptionAuthProtocol, Data: u16(ppp.ProtocolPAP)})
		err := handler.ParseConfigureRequest(req, 0, nak, reject)
		Expect(errors.Is(err, ppp.ErrUnhandled)).To(BeTrue())
	})
})

var _ = Describe("Compression", func() {
	var (
		handler *options.Compression
		nak     *ppp.ConfigurePacket
		reject  *ppp.ConfigurePacket
	)

	BeforeEach(func() {
		handler = options.NewPFC(true)
		nak = ppp.NewConfigurePacket(ppp.CodeConfigureNak)
		reject = ppp.NewConfigurePacket(ppp.CodeConfigureReject)
	})

	It("should request the option", func() {
		req := request()
		Expect(handler.AddToRequest(req)).To(Succeed())
		Expect(req.CountItemsWithType(ppp.OptionPFC)).To(Equal(1))
	})

	It("should track both directions", func() {
		req := request(ppp.ConfigureItem{Type: ppp.OptionPFC})
		Expect(handler.ParseConfigureRequest(req, 0, nak, reject)).To(Succeed())
		Expect(handler.SendingAck(req)).To(Succeed())
		Expect(handler.ParseAck(req)).To(Succeed())
		Expect(handler.Peer()).To(BeTrue())
		Expect(handler.Local()).To(BeTrue())

		handler.Reset()
		Expect(handler.Peer()).To(BeFalse())
		Expect(handler.Local()).To(BeFalse())
	})

	It("should fail when the option carries data", func() {
		req := request(ppp.ConfigureItem{Type: ppp.OptionPFC, Data: []byte{1}})
		err := handler.ParseConfigureRequest(req, 0, nak, reject)
		Expect(errors.Is(err, ppp.ErrMalformedPacket)).To(BeTrue())
	})

	It("should stop requesting after a Reject", func() {
		Expect(handler.ParseReject(request(ppp.ConfigureItem{Type: ppp.OptionPFC}))).To(Succeed())
		req := request()
		Expect(handler.AddToRequest(req)).To(Succeed())
		Expect(req.CountItems()).To(Equal(0))
	})

	It("should not request ACFC unless asked to", func() {
		req := request()
		Expect(options.NewACFC(false).AddToRequest(req)).To(Succeed())
		Expect(req.CountItems()).To(Equal(0))
	})
})
