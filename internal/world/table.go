package world

// dataCenter groups worlds under a data center name.
type dataCenter struct {
	name   string
	worlds []int
}

// region groups data centers under a region name.
type region struct {
	name        string
	dataCenters []dataCenter
}

var regions = []region{
	{
		name: "Europe",
		dataCenters: []dataCenter{
			{name: "Light", worlds: []int{402, 36, 66, 56, 403, 67, 33, 42}},
			{name: "Chaos", worlds: []int{80, 83, 71, 39, 401, 97, 400, 85}},
		},
	},
	{
		name: "North-America",
		dataCenters: []dataCenter{
			{name: "Aether", worlds: []int{73, 79, 54, 63, 40, 65, 99, 57}},
			{name: "Crystal", worlds: []int{91, 34, 74, 62, 81, 75, 37, 41}},
			{name: "Primal", worlds: []int{78, 93, 53, 35, 95, 55, 64, 77}},
			{name: "Dynamis", worlds: []int{408, 411, 406, 409, 407, 404, 410, 405}},
		},
	},
	{
		name: "Japan",
		dataCenters: []dataCenter{
			{name: "Elemental", worlds: []int{90, 68, 45, 58, 94, 49, 72, 50}},
			{name: "Gaia", worlds: []int{43, 69, 92, 46, 59, 98, 76, 51}},
			{name: "Mana", worlds: []int{44, 23, 70, 47, 48, 96, 28, 61}},
			{name: "Meteor", worlds: []int{24, 82, 60, 29, 30, 52, 31, 32}},
		},
	},
	{
		name: "Oceania",
		dataCenters: []dataCenter{
			{name: "Materia", worlds: []int{22, 21, 86, 87, 88}},
		},
	},
}

var worldNames = map[int]string{
	// Europe
	80: "Cerberus", 83: "Louisoix", 71: "Moogle", 39: "Omega",
	401: "Phantom", 97: "Ragnarok", 400: "Sagittarius", 85: "Spriggan",
	402: "Alpha", 36: "Lich", 66: "Odin", 56: "Phoenix",
	403: "Raiden", 67: "Shiva", 33: "Twintania", 42: "Zodiark",

	// North America
	73: "Adamantoise", 79: "Cactuar", 54: "Faerie", 63: "Gilgamesh",
	40: "Jenova", 65: "Midgardsormr", 99: "Sargatanas", 57: "Siren",
	91: "Balmung", 34: "Brynhildr", 74: "Coeurl", 62: "Diabolos",
	81: "Goblin", 75: "Malboro", 37: "Mateus", 41: "Zalera",
	408: "Cuchulainn", 411: "Golem", 406: "Halicarnassus", 409: "Kraken",
	407: "Maduin", 404: "Marilith", 410: "Rafflesia", 405: "Seraph",
	78: "Behemoth", 93: "Excalibur", 53: "Exodus", 35: "Famfrit",
	95: "Hyperion", 55: "Lamia", 64: "Leviathan", 77: "Ultros",

	// Oceania
	22: "Bismarck", 21: "Ravana", 86: "Sephirot", 87: "Sophia", 88: "Zurvan",

	// Japan
	90: "Aegis", 68: "Atomos", 45: "Carbuncle", 58: "Garuda",
	94: "Gungnir", 49: "Kujata", 72: "Tonberry", 50: "Typhon",
	43: "Alexander", 69: "Bahamut", 92: "Durandal", 46: "Fenrir",
	59: "Ifrit", 98: "Ridill", 76: "Tiamat", 51: "Ultima",
	44: "Anima", 23: "Asura", 70: "Chocobo", 47: "Hades",
	48: "Ixion", 96: "Masamune", 28: "Pandaemonium", 61: "Titan",
	24: "Belias", 82: "Mandragora", 60: "Ramuh", 29: "Shinryu",
	30: "Unicorn", 52: "Valefor", 31: "Yojimbo", 32: "Zeromus",
}
