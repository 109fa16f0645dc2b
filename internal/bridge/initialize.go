package bridge

import (
	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/pkg/helpers"
)

// InitializeParamsSize is the serialized size of InitializeParams.
const InitializeParamsSize = HeaderSize + ReturnOutputSize + ConfigSize + 32 + 3*32 + 20

// InitializeParams seeds the bridge state at creation.
type InitializeParams struct {
	Header                    Header
	ReturnOutput              ReturnOutput
	Config                    Config
	CustodianWalletConfigHash merkle.Hash
	Operator                  runtime.Pubkey
	FeeSpender                runtime.Pubkey
	DogeMint                  runtime.Pubkey
	BridgeDogePublicKeyHash   merkle.Hash160
}

func (ip *InitializeParams) marshal(w *writer) {
	ip.Header.marshal(w)
	ip.ReturnOutput.marshal(w)
	ip.Config.marshal(w)
	w.hash(ip.CustodianWalletConfigHash)
	w.pubkey(ip.Operator)
	w.pubkey(ip.FeeSpender)
	w.pubkey(ip.DogeMint)
	w.hash160(ip.BridgeDogePublicKeyHash)
}

func (ip *InitializeParams) unmarshal(r *reader) {
	ip.Header.unmarshal(r)
	ip.ReturnOutput.unmarshal(r)
	ip.Config.unmarshal(r)
	ip.CustodianWalletConfigHash = r.hash()
	ip.Operator = r.pubkey()
	ip.FeeSpender = r.pubkey()
	ip.DogeMint = r.pubkey()
	ip.BridgeDogePublicKeyHash = r.hash160()
}

// Initialize allocates and seeds the bridge state PDA. The ring is filled
// with the initial finalized commitment in every slot; all append-only
// trees start empty.
func (p *Program) Initialize(stateAcct *runtime.Account, bump uint8, params *InitializeParams) error {
	expected, err := runtime.CreateProgramAddress([][]byte{[]byte(StateSeedTag)}, bump, p.ID)
	if err != nil || expected != stateAcct.Key {
		return runtime.ErrInvalidAccountKey
	}
	if !helpers.IsZeroBytes(stateAcct.Data) {
		return ErrStateAlreadyInitialized
	}

	st := &State{
		DogeMint:                  params.DogeMint,
		Header:                    params.Header,
		LastReturnOutput:          params.ReturnOutput,
		Config:                    params.Config,
		CustodianWalletConfigHash: params.CustodianWalletConfigHash,
		BridgeDogePublicKeyHash:   params.BridgeDogePublicKeyHash,
		AccessControl: AccessControl{
			Operator:   params.Operator,
			FeeSpender: params.FeeSpender,
		},
		SentTransactionsTree:     *merkle.NewTree(),
		ManualDepositsTree:       *merkle.NewTree(),
		RequestedWithdrawalsTree: *merkle.NewTree(),
	}

	genesis := commitmentOf(&params.Header.Finalized)
	for i := range st.RecentFinalized {
		st.RecentFinalized[i] = genesis
	}

	stateAcct.Owner = p.ID
	p.logger().Info("bridge state initialized",
		"finalized_height", params.Header.Finalized.BlockHeight,
		"operator", params.Operator.String())
	return p.storeState(st, stateAcct)
}
