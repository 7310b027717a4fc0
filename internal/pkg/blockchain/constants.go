package blockchain

const (
	Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

	// Uniswap V3 deployment on Ethereum mainnet, used as the default chain.
	UniswapV3FactoryAddress         = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
	UniswapV3PositionManagerAddress = "0xC36442b4a4522E871399CD717aBC2a847FAB1FE8"
	UniswapV3PoolInitCodeHash       = "0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54"
)

var (
	Multicall3 = MustParseAddress(Multicall3Address)
)
