package config

// defaultProvinces maps AEMET municipality codes of the 50 provincial
// capitals to a human-readable province name. Overridable via PROVINCES.
var defaultProvinces = map[string]string{
	"01059": "Álava",
	"02003": "Albacete",
	"03014": "Alicante",
	"04013": "Almería",
	"05019": "Ávila",
	"06015": "Badajoz",
	"07040": "Islas Baleares",
	"08019": "Barcelona",
	"09059": "Burgos",
	"10037": "Cáceres",
	"11012": "Cádiz",
	"12040": "Castellón",
	"13034": "Ciudad Real",
	"14021": "Córdoba",
	"15030": "A Coruña",
	"16078": "Cuenca",
	"17079": "Girona",
	"18087": "Granada",
	"19130": "Guadalajara",
	"20069": "Gipuzkoa",
	"21041": "Huelva",
	"22125": "Huesca",
	"23050": "Jaén",
	"24089": "León",
	"25120": "Lleida",
	"26089": "La Rioja",
	"27028": "Lugo",
	"28079": "Madrid",
	"29067": "Málaga",
	"30030": "Murcia",
	"31201": "Navarra",
	"32054": "Ourense",
	"33044": "Asturias",
	"34120": "Palencia",
	"35016": "Las Palmas",
	"36038": "Pontevedra",
	"37274": "Salamanca",
	"38038": "Santa Cruz de Tenerife",
	"39075": "Cantabria",
	"40194": "Segovia",
	"41091": "Sevilla",
	"42173": "Soria",
	"43148": "Tarragona",
	"44216": "Teruel",
	"45168": "Toledo",
	"46250": "Valencia",
	"47186": "Valladolid",
	"48020": "Bizkaia",
	"49275": "Zamora",
	"50297": "Zaragoza",
}
